// Package record defines the data model shared by every civicsync component.
//
// This package imports nothing internal. The store, queue, engine and cache
// packages all depend on it, which keeps the storage contract (partition
// names, primary key fields, pending action shape) in one place.
//
// Records are arbitrary JSON objects. They are persisted as canonical JSON:
// keys sorted by UTF-16 code units, no HTML escaping, strings kept
// byte-for-byte. The same bytes are produced for the same record regardless
// of map iteration order. Payload fingerprints additionally NFC normalize
// strings, so payloads that differ only in Unicode normalization share one.
package record
