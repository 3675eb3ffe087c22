// Package store provides SQLite-backed durable storage for the offline cache.
//
// The store holds one table per partition:
//   - events: keyed by "id", with advisory category/start_date index columns
//   - notifications: keyed by "id"
//   - user_preferences: keyed by "key"
//   - pending_actions: keyed by an integer id from the sequences counter
//
// Records are stored as canonical JSON (see record.MarshalCanonical), so a
// record read back compares deeply equal to the JSON-decoded form of what
// was written.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Every error returned by this package is a *Error; callers treat them as
// retryable.
package store
