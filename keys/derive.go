package keys

import (
	"fmt"

	"golang.org/x/crypto/sha3"
)

// SeedSize is the size of the seed every private key is derived from.
const SeedSize = 32

// Role selects which validator key a derived seed belongs to.
type Role string

const (
	RoleConsensus Role = "consensus"
	RoleExecution Role = "execution"
)

const deriveDomain = "xdao-safety-rules/role-seed/v1"

// DeriveRoleSeed expands a root seed into the seed for one validator role.
// The same root and role always yield the same seed.
func DeriveRoleSeed(rootSeed []byte, role Role) ([]byte, error) {
	if len(rootSeed) != SeedSize {
		return nil, fmt.Errorf("%w: root seed must be %d bytes, got %d", ErrInvalidKey, SeedSize, len(rootSeed))
	}
	if err := role.check(); err != nil {
		return nil, err
	}

	xof := sha3.NewCShake256(nil, []byte(deriveDomain))
	_, _ = xof.Write(rootSeed)
	_, _ = xof.Write([]byte(role))
	out := make([]byte, SeedSize)
	_, _ = xof.Read(out)
	return out, nil
}

func (r Role) check() error {
	if r == "" {
		return fmt.Errorf("keys: empty role")
	}
	for _, c := range r {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return fmt.Errorf("keys: invalid character %q in role %q", c, string(r))
		}
	}
	return nil
}
