// Package sha256 derives stable row ids from natural keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher hex-encodes SHA-256 digests.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Key hashes parts joined with "/", the id form of composite keys such as
// fighter/fight pairs.
func (h *Hasher) Key(parts ...string) (string, error) {
	return h.Hash([]byte(strings.Join(parts, "/")))
}
