package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"xdao.co/safetyrules/keys"
	"xdao.co/safetyrules/types"
)

// IdentityBlob holds a validator's initial identity. The account key is the
// execution key.
type IdentityBlob struct {
	AccountAddress      *types.Author    `yaml:"account_address,omitempty"`
	AccountPrivateKey   *keys.PrivateKey `yaml:"account_private_key,omitempty"`
	ConsensusPrivateKey *keys.PrivateKey `yaml:"consensus_private_key,omitempty"`
}

var (
	ErrMissingAccountAddress = errors.New("config: identity blob is missing account_address")
	ErrMissingConsensusKey   = errors.New("config: identity blob is missing consensus_private_key")
	ErrMissingAccountKey     = errors.New("config: identity blob is missing account_private_key")
)

// Complete reports which required field is missing, if any.
func (b IdentityBlob) Complete() error {
	switch {
	case b.AccountAddress == nil:
		return ErrMissingAccountAddress
	case b.ConsensusPrivateKey == nil:
		return ErrMissingConsensusKey
	case b.AccountPrivateKey == nil:
		return ErrMissingAccountKey
	}
	return nil
}

// LoadIdentityBlob reads an identity blob YAML file.
func LoadIdentityBlob(path string) (IdentityBlob, error) {
	var blob IdentityBlob
	b, err := os.ReadFile(path)
	if err != nil {
		return blob, err
	}
	if err := yaml.Unmarshal(b, &blob); err != nil {
		return blob, fmt.Errorf("config: decode identity blob %s: %w", path, err)
	}
	return blob, nil
}

// Save writes the blob to path with mode 0600.
func (b IdentityBlob) Save(path string) error {
	out, err := yaml.Marshal(b)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, out, 0o600)
}
