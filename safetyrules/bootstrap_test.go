package safetyrules

import (
	"errors"
	"path/filepath"
	"testing"

	"xdao.co/safetyrules/config"
	"xdao.co/safetyrules/storage/testkit"
	"xdao.co/safetyrules/types"
)

func requireStartup(t *testing.T, err, sentinel error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected startup error %v, got nil", sentinel)
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
	if KindOf(err) != KindStartup {
		t.Fatalf("expected KindStartup, got %q (%v)", KindOf(err), err)
	}
}

func writeIdentity(t *testing.T, blob config.IdentityBlob) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity", "validator-identity.yaml")
	if err := blob.Save(path); err != nil {
		t.Fatalf("save identity: %v", err)
	}
	return path
}

func (f *fixture) identityBlob() config.IdentityBlob {
	author := f.author
	return config.IdentityBlob{
		AccountAddress:      &author,
		AccountPrivateKey:   f.execution,
		ConsensusPrivateKey: f.consensus,
	}
}

func TestBootstrap_InitializesFromIdentityBlobOnce(t *testing.T) {
	f := newFixture(t, 20)
	cfg := config.Default()
	cfg.Backend = onDiskBackend(t)
	cfg.InitialSafetyRules = &config.InitialSafetyRulesConfig{
		IdentityBlobPath: writeIdentity(t, f.identityBlob()),
		Waypoint:         f.waypoint,
	}

	s, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	author, err := s.Author()
	if err != nil || author != f.author {
		t.Fatalf("Author = %s, %v; want %s", author, err, f.author)
	}
	exec, err := s.ExecutionKey()
	if err != nil || !exec.Equal(f.execution) {
		t.Fatalf("ExecutionKey = %v, %v", exec, err)
	}

	r := NewSafetyRules(s, true, true)
	if err := r.Initialize(f.proof); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := r.ConstructAndSignVote(f.proposal(t, 1, f.genesisQC())); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A restart must find the existing identity and keep the voting state.
	s2, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	defer s2.Close()
	sd, err := s2.SafetyData()
	if err != nil {
		t.Fatalf("SafetyData: %v", err)
	}
	if sd.LastVotedRound != 1 {
		t.Fatalf("LastVotedRound after restart = %d, want 1", sd.LastVotedRound)
	}
	requireIdentity(t, s2, f, f.waypoint)
}

func TestBootstrap_SecondStartWritesNothing(t *testing.T) {
	f := newFixture(t, 24)
	cfg := config.Default()
	cfg.Backend = config.Backend{Type: countingBackend, Config: map[string]string{"name": t.Name()}}
	cfg.InitialSafetyRules = &config.InitialSafetyRulesConfig{
		IdentityBlobPath: writeIdentity(t, f.identityBlob()),
		Waypoint:         f.waypoint,
	}

	s, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	kv := countingKVNamed(t.Name())
	if kv.sets.Load() == 0 {
		t.Fatalf("first Bootstrap wrote nothing")
	}
	requireIdentity(t, s, f, f.waypoint)

	before := kv.sets.Load()
	s2, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if got := kv.sets.Load() - before; got != 0 {
		t.Fatalf("second Bootstrap issued %d writes, want 0", got)
	}
	requireIdentity(t, s2, f, f.waypoint)
	if _, err := s2.SafetyData(); err != nil {
		t.Fatalf("SafetyData: %v", err)
	}
	if got := kv.sets.Load() - before; got != 0 {
		t.Fatalf("reading state issued %d writes", got)
	}
}

func TestBootstrap_TestConfigOverwritesStorage(t *testing.T) {
	f := newFixture(t, 21)
	cfg := f.testConfig(onDiskBackend(t), config.ServiceLocal)

	s, err := Bootstrap(cfg)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	r := NewSafetyRules(s, true, true)
	if err := r.Initialize(f.proof); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := r.SignTimeout(types.Timeout{Epoch: 1, Round: 9}); err != nil {
		t.Fatalf("SignTimeout: %v", err)
	}
	_ = s.Close()

	// A second test config with different keys replaces every stored value.
	g := newFixture(t, 23)
	s, err = Bootstrap(g.testConfig(cfg.Backend, config.ServiceLocal))
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	defer s.Close()
	sd, err := s.SafetyData()
	if err != nil {
		t.Fatalf("SafetyData: %v", err)
	}
	if sd != types.NewSafetyData(1) {
		t.Fatalf("test config must reset safety data, got %+v", sd)
	}
	requireIdentity(t, s, g, g.waypoint)
	if g.waypoint == f.waypoint {
		t.Fatalf("fixtures share a waypoint; overwrite is not observable")
	}
}

func requireIdentity(t *testing.T, s *PersistentSafetyStorage, f *fixture, waypoint types.Waypoint) {
	t.Helper()
	author, err := s.Author()
	if err != nil || author != f.author {
		t.Fatalf("Author = %s, %v; want %s", author, err, f.author)
	}
	consensus, err := s.ConsensusKey()
	if err != nil || !consensus.Equal(f.consensus) {
		t.Fatalf("ConsensusKey = %v, %v; want %v", consensus, err, f.consensus)
	}
	exec, err := s.ExecutionKey()
	if err != nil || !exec.Equal(f.execution) {
		t.Fatalf("ExecutionKey = %v, %v; want %v", exec, err, f.execution)
	}
	w, err := s.Waypoint()
	if err != nil || w != waypoint {
		t.Fatalf("Waypoint = %s, %v; want %s", w, err, waypoint)
	}
}

func TestBootstrap_FatalConditions(t *testing.T) {
	f := newFixture(t, 22)

	t.Run("unavailable backend", func(t *testing.T) {
		cfg := f.testConfig(config.Backend{Type: testkit.UnavailableBackend}, config.ServiceLocal)
		_, err := Bootstrap(cfg)
		requireStartup(t, err, ErrStorageUnavailable)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := f.testConfig(config.Backend{Type: "vault"}, config.ServiceLocal)
		_, err := Bootstrap(cfg)
		requireStartup(t, err, ErrStorageUnavailable)
	})

	incomplete := []struct {
		name  string
		clear func(*config.TestConfig)
	}{
		{"consensus key", func(c *config.TestConfig) { c.ConsensusKey = nil }},
		{"execution key", func(c *config.TestConfig) { c.ExecutionKey = nil }},
		{"waypoint", func(c *config.TestConfig) { c.Waypoint = nil }},
	}
	for _, tc := range incomplete {
		t.Run("test config missing "+tc.name, func(t *testing.T) {
			cfg := f.testConfig(config.Backend{Type: "in_memory"}, config.ServiceLocal)
			tc.clear(cfg.Test)
			_, err := Bootstrap(cfg)
			requireStartup(t, err, ErrIncompleteTestConfig)
		})
	}

	t.Run("uninitialized without initial config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Backend = onDiskBackend(t)
		_, err := Bootstrap(cfg)
		requireStartup(t, err, ErrStorageUninitialized)
	})

	t.Run("identity blob without consensus key", func(t *testing.T) {
		blob := f.identityBlob()
		blob.ConsensusPrivateKey = nil
		cfg := config.Default()
		cfg.InitialSafetyRules = &config.InitialSafetyRulesConfig{
			IdentityBlobPath: writeIdentity(t, blob),
			Waypoint:         f.waypoint,
		}
		_, err := Bootstrap(cfg)
		requireStartup(t, err, ErrIncompleteIdentity)
	})

	t.Run("identity blob missing on disk", func(t *testing.T) {
		cfg := config.Default()
		cfg.InitialSafetyRules = &config.InitialSafetyRulesConfig{
			IdentityBlobPath: filepath.Join(t.TempDir(), "absent.yaml"),
			Waypoint:         f.waypoint,
		}
		_, err := Bootstrap(cfg)
		requireStartup(t, err, ErrIncompleteIdentity)
	})
}

func TestBootstrap_DefaultBackendIsLinked(t *testing.T) {
	// Default storage opens; it only lacks an identity.
	_, err := Bootstrap(config.Default())
	requireStartup(t, err, ErrStorageUninitialized)
	if errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("default backend failed to open: %v", err)
	}
}
