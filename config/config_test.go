package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/safetyrules/keys"
	"xdao.co/safetyrules/types"
)

func testKey(t *testing.T, b byte) *keys.PrivateKey {
	t.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	k, err := keys.NewPrivateKeyFromSeed(keys.SchemeEd25519, seed)
	if err != nil {
		t.Fatalf("NewPrivateKeyFromSeed: %v", err)
	}
	return k
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.NetworkTimeout().Milliseconds() != DefaultNetworkTimeoutMs {
		t.Fatalf("unexpected network timeout: %v", cfg.NetworkTimeout())
	}
}

func TestParseYAML(t *testing.T) {
	consensus := testKey(t, 1)
	execution := testKey(t, 2)
	author := types.AuthorFromPublicKey(consensus.PublicKey())

	doc := `
backend:
  type: on_disk
  config:
    path: /tmp/secure.json
service:
  type: Thread
network_timeout_ms: 500
verify_vote_proposal_signature: false
test:
  author: ` + author.String() + `
  consensus_key: ` + consensus.Encode() + `
  execution_key: ` + execution.Encode() + `
  waypoint: "0:"
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Backend.Type != "on_disk" || cfg.Backend.Config["path"] != "/tmp/secure.json" {
		t.Fatalf("unexpected backend: %+v", cfg.Backend)
	}
	if cfg.Service.Kind != ServiceThread {
		t.Fatalf("expected thread service, got %q", cfg.Service.Kind)
	}
	if cfg.NetworkTimeoutMs != 500 {
		t.Fatalf("expected 500ms, got %d", cfg.NetworkTimeoutMs)
	}
	if cfg.VerifyVoteProposalSignature {
		t.Fatalf("expected verify_vote_proposal_signature=false")
	}
	// Unset fields keep their defaults.
	if !cfg.EnableCachedSafetyData {
		t.Fatalf("expected enable_cached_safety_data default true")
	}
	if cfg.Test == nil {
		t.Fatalf("expected test config")
	}
	if cfg.Test.Author != author {
		t.Fatalf("author mismatch")
	}
	if !cfg.Test.ConsensusKey.Equal(consensus) || !cfg.Test.ExecutionKey.Equal(execution) {
		t.Fatalf("key mismatch")
	}
	if cfg.Test.Waypoint == nil || !cfg.Test.Waypoint.IsZero() {
		t.Fatalf("expected zero waypoint, got %v", cfg.Test.Waypoint)
	}
}

func TestParseRejectsUnknownServiceKind(t *testing.T) {
	_, err := Parse([]byte("service:\n  type: vault\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown service kind") {
		t.Fatalf("expected unknown service kind error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SafetyRulesConfig)
		want   string
	}{
		{"process without address", func(c *SafetyRulesConfig) { c.Service.Kind = ServiceProcess }, "server_address"},
		{"missing backend", func(c *SafetyRulesConfig) { c.Backend.Type = "" }, "backend.type"},
		{"zero timeout", func(c *SafetyRulesConfig) { c.NetworkTimeoutMs = 0 }, "network_timeout_ms"},
		{"empty kind", func(c *SafetyRulesConfig) { c.Service.Kind = "" }, "unknown service kind"},
		{"initial without blob", func(c *SafetyRulesConfig) { c.InitialSafetyRules = &InitialSafetyRulesConfig{} }, "identity_blob_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	cfg := Default()
	cfg.Service = ServiceConfig{Kind: ServiceProcess, ServerAddress: "127.0.0.1:9101"}
	cfg.Backend.Type = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("process config does not need a backend: %v", err)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("SAFETY_RULES_SERVICE_KIND", "process")
	t.Setenv("SAFETY_RULES_SERVICE_SERVER_ADDRESS", "10.0.0.1:6191")
	t.Setenv("SAFETY_RULES_NETWORK_TIMEOUT_MS", "250")
	t.Setenv("SAFETY_RULES_BACKEND_CONFIG", "path:/var/lib/kv.db")

	cfg, err := Parse([]byte("service:\n  type: local\nnetwork_timeout_ms: 1000\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Service.Kind != ServiceProcess || cfg.Service.ServerAddress != "10.0.0.1:6191" {
		t.Fatalf("env did not override service: %+v", cfg.Service)
	}
	if cfg.NetworkTimeoutMs != 250 {
		t.Fatalf("env did not override timeout: %d", cfg.NetworkTimeoutMs)
	}
	if cfg.Backend.Config["path"] != "/var/lib/kv.db" {
		t.Fatalf("env did not override backend config: %v", cfg.Backend.Config)
	}
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("SAFETY_RULES_NETWORK_TIMEOUT_MS", "not-a-number")
	_, err := Parse(nil)
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	path := filepath.Join(t.TempDir(), "safety-rules.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  type: sqlite\n  config:\n    path: kv.db\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.Type != "sqlite" {
		t.Fatalf("unexpected backend %q", cfg.Backend.Type)
	}
}

func TestIdentityBlobSaveLoad(t *testing.T) {
	consensus := testKey(t, 3)
	account := testKey(t, 4)
	author := types.AuthorFromPublicKey(account.PublicKey())
	blob := IdentityBlob{
		AccountAddress:      &author,
		AccountPrivateKey:   account,
		ConsensusPrivateKey: consensus,
	}
	path := filepath.Join(t.TempDir(), "keys", "identity.yaml")
	if err := blob.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode().Perm())
	}

	got, err := LoadIdentityBlob(path)
	if err != nil {
		t.Fatalf("LoadIdentityBlob: %v", err)
	}
	if err := got.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if *got.AccountAddress != author || !got.ConsensusPrivateKey.Equal(consensus) || !got.AccountPrivateKey.Equal(account) {
		t.Fatalf("identity blob round trip mismatch")
	}
}

func TestIdentityBlobComplete(t *testing.T) {
	author := types.Author{1}
	if err := (IdentityBlob{}).Complete(); err != ErrMissingAccountAddress {
		t.Fatalf("expected ErrMissingAccountAddress, got %v", err)
	}
	if err := (IdentityBlob{AccountAddress: &author}).Complete(); err != ErrMissingConsensusKey {
		t.Fatalf("expected ErrMissingConsensusKey, got %v", err)
	}
	if err := (IdentityBlob{AccountAddress: &author, ConsensusPrivateKey: testKey(t, 5)}).Complete(); err != ErrMissingAccountKey {
		t.Fatalf("expected ErrMissingAccountKey, got %v", err)
	}
}
