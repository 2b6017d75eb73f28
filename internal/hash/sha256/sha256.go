// Package sha256 provides the digest used to key the persistent cache.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements harvester.Hasher using SHA-256. Cache entries are keyed
// by the digest of the URL bytes.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
