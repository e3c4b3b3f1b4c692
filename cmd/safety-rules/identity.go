package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xdao.co/safetyrules/config"
	"xdao.co/safetyrules/keys"
	"xdao.co/safetyrules/types"
)

func newGenIdentityCmd(out io.Writer) *cobra.Command {
	var seedHex, outPath, scheme string
	var force bool
	cmd := &cobra.Command{
		Use:   "gen-identity",
		Short: "Write an identity blob for initial_safety_rules_config",
		Long: `gen-identity derives the consensus and account keys from one root seed
and writes them, with the derived account address, to a YAML identity blob.
Without --seed-hex a random root seed is used.

The account key is always ed25519; --scheme selects the consensus key scheme.`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if outPath == "" {
				return errors.New("--out is required")
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", outPath)
				}
			}
			root, err := rootSeed(seedHex)
			if err != nil {
				return err
			}
			blob, err := deriveIdentity(root, keys.Scheme(scheme))
			if err != nil {
				return err
			}
			if err := blob.Save(outPath); err != nil {
				return fmt.Errorf("write identity: %w", err)
			}
			_, _ = fmt.Fprintln(out, blob.AccountAddress.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&seedHex, "seed-hex", "", "32-byte root seed as 64 hex chars")
	cmd.Flags().StringVar(&outPath, "out", "", "Identity blob path (written with mode 0600)")
	cmd.Flags().StringVar(&scheme, "scheme", string(keys.SchemeEd25519), "Consensus key scheme: ed25519 or mldsa44")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing identity blob")
	return cmd
}

func rootSeed(seedHex string) ([]byte, error) {
	if seedHex == "" {
		seed := make([]byte, keys.SeedSize)
		if _, err := io.ReadFull(rand.Reader, seed); err != nil {
			return nil, fmt.Errorf("read random seed: %w", err)
		}
		return seed, nil
	}
	seed, err := hex.DecodeString(strings.TrimSpace(seedHex))
	if err != nil {
		return nil, fmt.Errorf("--seed-hex: %w", err)
	}
	if len(seed) != keys.SeedSize {
		return nil, fmt.Errorf("--seed-hex must be %d bytes, got %d", keys.SeedSize, len(seed))
	}
	return seed, nil
}

func deriveIdentity(root []byte, scheme keys.Scheme) (config.IdentityBlob, error) {
	consensusSeed, err := keys.DeriveRoleSeed(root, keys.RoleConsensus)
	if err != nil {
		return config.IdentityBlob{}, err
	}
	executionSeed, err := keys.DeriveRoleSeed(root, keys.RoleExecution)
	if err != nil {
		return config.IdentityBlob{}, err
	}
	consensus, err := keys.NewPrivateKeyFromSeed(scheme, consensusSeed)
	if err != nil {
		return config.IdentityBlob{}, fmt.Errorf("consensus key: %w", err)
	}
	account, err := keys.NewPrivateKeyFromSeed(keys.SchemeEd25519, executionSeed)
	if err != nil {
		return config.IdentityBlob{}, fmt.Errorf("account key: %w", err)
	}
	author := types.AuthorFromPublicKey(consensus.PublicKey())
	return config.IdentityBlob{
		AccountAddress:      &author,
		AccountPrivateKey:   account,
		ConsensusPrivateKey: consensus,
	}, nil
}
