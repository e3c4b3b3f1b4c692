package safetyrules

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"xdao.co/safetyrules/config"
	"xdao.co/safetyrules/types"
)

func TestManager_SerializesEveryCall(t *testing.T) {
	topologies := []struct {
		name  string
		build func(TSafetyRules) *Manager
	}{
		{"local", func(r TSafetyRules) *Manager { return newLocalManager(r) }},
		{"serializer", func(r TSafetyRules) *Manager { return newSerializerManager(r) }},
		{"thread", func(r TSafetyRules) *Manager { return newThreadManager(r, 10*time.Second, WithMailboxSize(2)) }},
	}
	const clients, calls = 8, 10
	f := newFixture(t, 19)
	proposal := f.proposal(t, 1, f.genesisQC())
	for _, tc := range topologies {
		t.Run(tc.name, func(t *testing.T) {
			spy := &spyRules{delay: time.Millisecond}
			m := tc.build(spy)
			defer m.Close()

			var g errgroup.Group
			for i := 0; i < clients; i++ {
				c := m.Client()
				g.Go(func() error {
					for j := 0; j < calls; j++ {
						if _, err := c.ConsensusState(); err != nil {
							return err
						}
						if _, err := c.ConstructAndSignVote(proposal); err != nil {
							return err
						}
						if _, err := c.SignTimeout(types.Timeout{Epoch: 1, Round: uint64(j)}); err != nil {
							return err
						}
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatalf("concurrent calls: %v", err)
			}
			if got := spy.max.Load(); got != 1 {
				t.Fatalf("%d operations overlapped", got)
			}
			if got := spy.calls.Load(); got != 3*clients*calls {
				t.Fatalf("evaluator ran %d times, want %d", got, 3*clients*calls)
			}
		})
	}
}

type outcome struct {
	Vote      *types.Vote
	Signature []byte
	State     *types.ConsensusState
	Err       string
}

func outcomeOf(err error) string {
	if err == nil {
		return ""
	}
	return string(KindOf(err)) + "/" + toWireError(err).Code
}

// script drives one client through a fixed sequence of operations and
// records everything it observes.
func script(t *testing.T, f *fixture, c TSafetyRules) []outcome {
	t.Helper()
	var out []outcome
	record := func(o outcome) { out = append(out, o) }
	state := func() {
		cs, err := c.ConsensusState()
		record(outcome{State: &cs, Err: outcomeOf(err)})
	}

	// Not initialized yet.
	_, err := c.SignTimeout(types.Timeout{Epoch: 1, Round: 1})
	record(outcome{Err: outcomeOf(err)})

	record(outcome{Err: outcomeOf(c.Initialize(f.proof))})
	state()

	v1, err := c.ConstructAndSignVote(f.proposal(t, 1, f.genesisQC()))
	record(outcome{Vote: &v1, Err: outcomeOf(err)})
	_, err = c.ConstructAndSignVote(f.proposal(t, 0, f.genesisQC()))
	record(outcome{Err: outcomeOf(err)})

	v2, err := c.ConstructAndSignVote(f.proposal(t, 2, qcFromVote(v1)))
	record(outcome{Vote: &v2, Err: outcomeOf(err)})
	v3, err := c.ConstructAndSignVote(f.proposal(t, 3, qcFromVote(v2)))
	record(outcome{Vote: &v3, Err: outcomeOf(err)})
	state()

	sig, err := c.SignProposal(f.proposal(t, 4, qcFromVote(v3)).Block.Data)
	record(outcome{Signature: sig, Err: outcomeOf(err)})
	_, err = c.SignProposal(f.proposal(t, 5, f.genesisQC()).Block.Data)
	record(outcome{Err: outcomeOf(err)})

	sig, err = c.SignTimeout(types.Timeout{Epoch: 1, Round: 7})
	record(outcome{Signature: sig, Err: outcomeOf(err)})
	_, err = c.SignTimeout(types.Timeout{Epoch: 1, Round: 6})
	record(outcome{Err: outcomeOf(err)})

	record(outcome{Err: outcomeOf(c.Initialize(f.endEpoch(t, 10)))})
	state()
	return out
}

func TestManager_TopologiesAgree(t *testing.T) {
	f := newFixture(t, 60)

	run := func(t *testing.T, kind config.ServiceKind) []outcome {
		cfg := f.testConfig(config.Backend{Type: "in_memory"}, kind)
		var opts []Option
		if kind == config.ServiceProcess {
			storage, err := Bootstrap(cfg)
			if err != nil {
				t.Fatalf("Bootstrap: %v", err)
			}
			opts = append(opts, startRemote(t, NewSafetyRules(storage, true, true)))
			cfg.Service.ServerAddress = "passthrough:///bufnet"
		}
		m, err := NewManager(cfg, opts...)
		if err != nil {
			t.Fatalf("NewManager(%s): %v", kind, err)
		}
		defer m.Close()
		return script(t, f, m.Client())
	}

	want := run(t, config.ServiceLocal)
	for i, o := range want {
		if o.Err != "" && !strings.HasPrefix(o.Err, string(KindRefusal)+"/") {
			t.Fatalf("local step %d failed unexpectedly: %s", i, o.Err)
		}
	}
	for _, kind := range []config.ServiceKind{config.ServiceSerializer, config.ServiceThread, config.ServiceProcess} {
		t.Run(kind.String(), func(t *testing.T) {
			got := run(t, kind)
			if len(got) != len(want) {
				t.Fatalf("%d outcomes, want %d", len(got), len(want))
			}
			for i := range want {
				if !reflect.DeepEqual(got[i], want[i]) {
					t.Fatalf("step %d differs:\n got %+v\nwant %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestManager_LocalPanicPoisons(t *testing.T) {
	for _, build := range []func(TSafetyRules) *Manager{
		func(r TSafetyRules) *Manager { return newLocalManager(r) },
		func(r TSafetyRules) *Manager { return newSerializerManager(r) },
	} {
		spy := &spyRules{panicOn: opSignProposal}
		m := build(spy)
		_, err := m.Client().SignProposal(types.BlockData{})
		if !errors.Is(err, ErrPoisoned) || KindOf(err) != KindInternal {
			t.Fatalf("%s: expected poisoned error, got %v", m.Kind(), err)
		}
		_, err = m.Client().ConsensusState()
		if !errors.Is(err, ErrPoisoned) {
			t.Fatalf("%s: expected later calls to fail, got %v", m.Kind(), err)
		}
		if n := spy.calls.Load(); n != 1 {
			t.Fatalf("%s: evaluator ran %d times", m.Kind(), n)
		}
	}
}

func TestManager_UnknownServiceIsFatal(t *testing.T) {
	f := newFixture(t, 61)
	cfg := f.testConfig(config.Backend{Type: "in_memory"}, config.ServiceKind("vault"))
	_, err := NewManager(cfg)
	requireStartup(t, err, ErrUnknownService)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrUnknownService) {
			t.Fatalf("MustNewManager panic = %v", r)
		}
	}()
	MustNewManager(cfg)
	t.Fatalf("MustNewManager returned")
}

func TestManager_BootstrapFailureIsFatal(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = onDiskBackend(t)
	_, err := NewManager(cfg)
	requireStartup(t, err, ErrStorageUninitialized)
}

func TestManager_ClientsShareOneEvaluator(t *testing.T) {
	f := newFixture(t, 62)
	m, err := NewManager(f.testConfig(onDiskBackend(t), config.ServiceThread))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	a, b := m.Client(), m.Client()
	if err := a.Initialize(f.proof); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := a.ConstructAndSignVote(f.proposal(t, 1, f.genesisQC())); err != nil {
		t.Fatalf("vote from a: %v", err)
	}
	_, err = b.ConstructAndSignVote(f.proposal(t, 1, f.genesisQC()))
	if err != nil {
		t.Fatalf("identical re-vote from b: %v", err)
	}
	if _, err := b.SignTimeout(types.Timeout{Epoch: 1, Round: 1}); err != nil {
		t.Fatalf("SignTimeout from b: %v", err)
	}
	if cs := consensusState(t, a); cs.SafetyData.LastVotedRound != 1 {
		t.Fatalf("LastVotedRound = %d, want 1", cs.SafetyData.LastVotedRound)
	}
}
