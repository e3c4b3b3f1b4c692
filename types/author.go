package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"xdao.co/safetyrules/keys"
)

// AuthorSize is the size of a validator address.
const AuthorSize = 32

// Author is a validator account address.
type Author [AuthorSize]byte

// AuthorFromPublicKey derives an address from a public key.
func AuthorFromPublicKey(pub keys.PublicKey) Author {
	return Author(HashBytes(append([]byte(pub.Scheme+":"), pub.Data...)))
}

// ParseAuthor parses a hex address, with or without a 0x prefix.
func ParseAuthor(s string) (Author, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return Author{}, fmt.Errorf("invalid author %q: %w", s, err)
	}
	if len(data) != AuthorSize {
		return Author{}, fmt.Errorf("author must be %d bytes, got %d", AuthorSize, len(data))
	}
	var a Author
	copy(a[:], data)
	return a, nil
}

func (a Author) String() string {
	return hex.EncodeToString(a[:])
}

// ShortString is used in logs.
func (a Author) ShortString() string {
	return hex.EncodeToString(a[:4])
}

func (a Author) IsZero() bool {
	return a == Author{}
}

func (a Author) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Author) UnmarshalText(text []byte) error {
	parsed, err := ParseAuthor(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
