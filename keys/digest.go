package keys

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HashAlg names a digest used for hashing consensus data.
type HashAlg string

const (
	HashSHA256  HashAlg = "sha256"
	HashSHA3256 HashAlg = "sha3-256"
)

// Digest hashes message with alg.
func Digest(alg HashAlg, message []byte) ([]byte, error) {
	switch alg {
	case HashSHA3256:
		s := sha3.Sum256(message)
		return s[:], nil
	case HashSHA256:
		s := sha256.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("keys: unsupported hash algorithm %q", alg)
	}
}
