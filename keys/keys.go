package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
)

// Scheme names a signature scheme.
type Scheme string

const (
	SchemeEd25519 Scheme = "ed25519"
	SchemeMLDSA44 Scheme = "mldsa44"
)

var (
	ErrUnknownScheme = errors.New("keys: unknown signature scheme")
	ErrInvalidKey    = errors.New("keys: invalid key encoding")
)

func (s Scheme) valid() bool {
	return s == SchemeEd25519 || s == SchemeMLDSA44
}

// PublicKey is a scheme-tagged public key.
type PublicKey struct {
	Scheme Scheme
	Data   []byte
}

// Equal reports whether both keys use the same scheme and bytes.
func (p PublicKey) Equal(o PublicKey) bool {
	return p.Scheme == o.Scheme && bytes.Equal(p.Data, o.Data)
}

// IsZero reports whether the key is unset.
func (p PublicKey) IsZero() bool {
	return p.Scheme == "" && len(p.Data) == 0
}

// Verify reports whether sig is a valid signature of msg under p.
func (p PublicKey) Verify(msg, sig []byte) bool {
	switch p.Scheme {
	case SchemeEd25519:
		if len(p.Data) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(p.Data), msg, sig)
	case SchemeMLDSA44:
		var pk mldsa44.PublicKey
		if err := pk.UnmarshalBinary(p.Data); err != nil {
			return false
		}
		return mldsa44.Verify(&pk, msg, nil, sig)
	default:
		return false
	}
}

func (p PublicKey) String() string {
	return string(p.Scheme) + ":" + base64.StdEncoding.EncodeToString(p.Data)
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePublicKey parses the "<scheme>:<base64>" form.
func ParsePublicKey(s string) (PublicKey, error) {
	scheme, data, err := splitEncoded(s)
	if err != nil {
		return PublicKey{}, err
	}
	switch scheme {
	case SchemeEd25519:
		if len(data) != ed25519.PublicKeySize {
			return PublicKey{}, fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d", ErrInvalidKey, ed25519.PublicKeySize, len(data))
		}
	case SchemeMLDSA44:
		if len(data) != mldsa44.PublicKeySize {
			return PublicKey{}, fmt.Errorf("%w: mldsa44 public key must be %d bytes, got %d", ErrInvalidKey, mldsa44.PublicKeySize, len(data))
		}
	}
	return PublicKey{Scheme: scheme, Data: data}, nil
}

// PrivateKey is a signing key reconstructed from a seed.
//
// String never reveals the seed; use Encode to export it.
type PrivateKey struct {
	scheme Scheme
	seed   []byte
	pub    PublicKey

	ed ed25519.PrivateKey
	ml *mldsa44.PrivateKey
}

// NewPrivateKeyFromSeed builds a key of the given scheme from a SeedSize seed.
func NewPrivateKeyFromSeed(scheme Scheme, seed []byte) (*PrivateKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKey, SeedSize, len(seed))
	}
	k := &PrivateKey{scheme: scheme, seed: append([]byte(nil), seed...)}
	switch scheme {
	case SchemeEd25519:
		k.ed = ed25519.NewKeyFromSeed(seed)
		k.pub = PublicKey{Scheme: scheme, Data: append([]byte(nil), k.ed.Public().(ed25519.PublicKey)...)}
	case SchemeMLDSA44:
		var s [mldsa44.SeedSize]byte
		copy(s[:], seed)
		pk, sk := mldsa44.NewKeyFromSeed(&s)
		data, err := pk.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("keys: encode mldsa44 public key: %w", err)
		}
		k.ml = sk
		k.pub = PublicKey{Scheme: scheme, Data: data}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return k, nil
}

// GeneratePrivateKey draws a fresh seed from rand.
func GeneratePrivateKey(scheme Scheme, rand io.Reader) (*PrivateKey, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, fmt.Errorf("keys: read seed: %w", err)
	}
	return NewPrivateKeyFromSeed(scheme, seed)
}

func (k *PrivateKey) Scheme() Scheme { return k.scheme }

func (k *PrivateKey) PublicKey() PublicKey { return k.pub }

// Sign signs msg. ML-DSA signatures are produced deterministically.
func (k *PrivateKey) Sign(msg []byte) ([]byte, error) {
	if k == nil {
		return nil, errors.New("keys: missing private key")
	}
	switch k.scheme {
	case SchemeEd25519:
		return ed25519.Sign(k.ed, msg), nil
	case SchemeMLDSA44:
		sig := make([]byte, mldsa44.SignatureSize)
		if err := mldsa44.SignTo(k.ml, msg, nil, false, sig); err != nil {
			return nil, fmt.Errorf("keys: mldsa44 sign: %w", err)
		}
		return sig, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, k.scheme)
	}
}

// Encode returns the secret "<scheme>:<base64 seed>" form.
func (k *PrivateKey) Encode() string {
	return string(k.scheme) + ":" + base64.StdEncoding.EncodeToString(k.seed)
}

// Equal reports whether both keys carry the same scheme and seed.
func (k *PrivateKey) Equal(o *PrivateKey) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.scheme == o.scheme && bytes.Equal(k.seed, o.seed)
}

func (k *PrivateKey) String() string {
	if k == nil {
		return "<nil>"
	}
	return string(k.scheme) + " private key (" + k.pub.String() + ")"
}

func (k *PrivateKey) MarshalText() ([]byte, error) {
	return []byte(k.Encode()), nil
}

func (k *PrivateKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePrivateKey(string(text))
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// ParsePrivateKey parses the form produced by Encode.
func ParsePrivateKey(s string) (*PrivateKey, error) {
	scheme, seed, err := splitEncoded(s)
	if err != nil {
		return nil, err
	}
	return NewPrivateKeyFromSeed(scheme, seed)
}

func splitEncoded(s string) (Scheme, []byte, error) {
	s = strings.TrimSpace(s)
	name, b64, ok := strings.Cut(s, ":")
	if !ok {
		return "", nil, fmt.Errorf("%w: expected <scheme>:<base64>", ErrInvalidKey)
	}
	scheme := Scheme(name)
	if !scheme.valid() {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return scheme, data, nil
}
