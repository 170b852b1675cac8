package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest algorithms accepted in configuration. Clients must hash with the
// same algorithm for cache checks to hit.
const (
	DigestSHA256 = "sha256"
	DigestBLAKE3 = "blake3"
)

// NewHasher returns a constructor for the named digest algorithm.
func NewHasher(algorithm string) (func() hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "", DigestSHA256:
		return sha256.New, nil
	case DigestBLAKE3:
		return func() hash.Hash { return blake3.New() }, nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q (valid: %s, %s)", algorithm, DigestSHA256, DigestBLAKE3)
	}
}

// HashFile returns the lowercase hex digest of the file at path.
func HashFile(path string, newHash func() hash.Hash) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
