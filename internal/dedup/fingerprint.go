package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint is the SHA-256 digest of normalized post text. Two posts with the same
// fingerprint carry the same content.
type Fingerprint [sha256.Size]byte

// FingerprintOf hashes the normalized form of text.
func FingerprintOf(text string) Fingerprint {
	return fingerprintNormalized(Normalize(text))
}

func fingerprintNormalized(normalized string) Fingerprint {
	return Fingerprint(sha256.Sum256([]byte(normalized)))
}

// String returns the lowercase hex form used in persisted indexes.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ParseFingerprint decodes the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != hex.EncodedLen(len(fp)) {
		return fp, fmt.Errorf("fingerprint %q: want %d hex chars", s, hex.EncodedLen(len(fp)))
	}
	if _, err := hex.Decode(fp[:], []byte(s)); err != nil {
		return fp, fmt.Errorf("fingerprint %q: %w", s, err)
	}
	return fp, nil
}

// Set is an in-memory set of fingerprints.
type Set map[Fingerprint]struct{}

// Has reports membership.
func (s Set) Has(fp Fingerprint) bool {
	_, ok := s[fp]
	return ok
}

// Add inserts fp.
func (s Set) Add(fp Fingerprint) {
	s[fp] = struct{}{}
}
