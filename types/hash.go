package types

import (
	"encoding/hex"
	"fmt"

	"xdao.co/safetyrules/keys"
)

// HashSize is the size of a HashValue in bytes.
const HashSize = 32

// HashValue is a SHA3-256 digest.
type HashValue [HashSize]byte

func (h HashValue) String() string {
	return hex.EncodeToString(h[:])
}

func (h HashValue) IsZero() bool {
	return h == HashValue{}
}

// HashBytes hashes data with SHA3-256.
func HashBytes(data []byte) HashValue {
	sum, err := keys.Digest(keys.HashSHA3256, data)
	if err != nil {
		panic(fmt.Sprintf("types: sha3-256 unavailable: %v", err))
	}
	var h HashValue
	copy(h[:], sum)
	return h
}

// cryptoHash hashes the canonical encoding of v, salted with a per-type domain.
func cryptoHash(domain string, v any) HashValue {
	data, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("SAFETY CRITICAL: failed to encode %s for hashing: %v", domain, err))
	}
	salted := make([]byte, 0, len(domain)+2+len(data))
	salted = append(salted, "SAFETY::"...)
	salted = append(salted, domain...)
	salted = append(salted, 0)
	salted = append(salted, data...)
	return HashBytes(salted)
}
