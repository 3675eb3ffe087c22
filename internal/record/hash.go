package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainPayload separates payload fingerprints from any other hash use.
const DomainPayload = "civicsync/payload/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a stable content digest of an action payload.
// Two payloads that differ only in key order or Unicode normalization share
// a fingerprint.
func Fingerprint(payload Record) (string, error) {
	canonical, err := marshalNormalized(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}
