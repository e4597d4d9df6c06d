// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// compliant serialization and SHA-256 content hashing for ProofPack records.
//
// This is the single canonicalization routine shared by the exporter and the
// offline verifier. Both sides must agree byte-for-byte, so no other package
// may reimplement any of these rules.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

// HashAlgorithm is the only algorithm this core produces or accepts. It is
// carried alongside every hash value so a future migration is explicit
// rather than silent.
const HashAlgorithm = "sha256"

// TimeFormat renders timestamps as ISO-8601 UTC with a fixed-width
// nanosecond fraction and explicit Z suffix. Fixed width keeps the canonical
// form stable for instants whose fractional seconds end in zero.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// FormatTime returns the canonical string rendering of t.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a canonical timestamp. It also accepts plain RFC 3339
// variants so records produced by older writers still verify.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("canonicalize: invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatUUID returns the canonical rendering of a UUID string: lowercase,
// hyphenated.
func FormatUUID(s string) string {
	return strings.ToLower(s)
}

// JCS returns the RFC 8785 canonical JSON encoding of v.
//
// v is marshalled with encoding/json first (so struct tags are honored),
// then transformed to canonical form: object keys sorted lexicographically
// by UTF-8 bytes, compact separators, ES6 number formatting, minimal string
// escaping (no HTML escaping), UTF-8 without BOM. Array order is preserved —
// element order is semantically meaningful for fields like input_refs.
func JCS(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	data, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HashBytes computes the SHA-256 hash of raw bytes as lowercase hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON
// representation of v.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashPrefix returns the first 16 hex characters of a content hash, used for
// short deterministic bundle file names.
func HashPrefix(hash string) string {
	if len(hash) < 16 {
		return hash
	}
	return hash[:16]
}
