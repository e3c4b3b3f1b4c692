package safetyrules

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"xdao.co/safetyrules/config"
	"xdao.co/safetyrules/keys"
	"xdao.co/safetyrules/storage"
	"xdao.co/safetyrules/storage/kvregistry"
	"xdao.co/safetyrules/storage/memory"
	"xdao.co/safetyrules/types"

	_ "xdao.co/safetyrules/storage/ondisk"
	_ "xdao.co/safetyrules/storage/testkit"
)

// countingBackend hands out one in-memory store per config "name" and counts
// writes to it, so a test can reopen the same store and see what changed.
const countingBackend = "counting_memory"

type countingKV struct {
	*memory.KV
	sets atomic.Int32
}

func (c *countingKV) Set(key string, value []byte) error {
	c.sets.Add(1)
	return c.KV.Set(key, value)
}

var countingStores sync.Map

func countingKVNamed(name string) *countingKV {
	kv, _ := countingStores.LoadOrStore(name, &countingKV{KV: memory.New()})
	return kv.(*countingKV)
}

func init() {
	kvregistry.MustRegister(kvregistry.Backend{
		Name:       countingBackend,
		ConfigKeys: []string{"name"},
		Open: func(cfg map[string]string) (storage.KV, func() error, error) {
			return countingKVNamed(cfg["name"]), nil, nil
		},
	})
}

// fixture is a single-validator network at epoch 1.
type fixture struct {
	author    types.Author
	consensus *keys.PrivateKey
	execution *keys.PrivateKey

	verifier  types.ValidatorVerifier
	genesisLI types.LedgerInfo
	waypoint  types.Waypoint
	proof     types.EpochChangeProof
	genesis   types.BlockInfo
}

func seedKey(t *testing.T, scheme keys.Scheme, b byte) *keys.PrivateKey {
	t.Helper()
	seed := make([]byte, keys.SeedSize)
	for i := range seed {
		seed[i] = b
	}
	k, err := keys.NewPrivateKeyFromSeed(scheme, seed)
	if err != nil {
		t.Fatalf("NewPrivateKeyFromSeed: %v", err)
	}
	return k
}

func newFixture(t *testing.T, b byte) *fixture {
	t.Helper()
	return newFixtureWithScheme(t, keys.SchemeEd25519, b)
}

func newFixtureWithScheme(t *testing.T, scheme keys.Scheme, b byte) *fixture {
	t.Helper()
	f := &fixture{
		consensus: seedKey(t, scheme, b),
		execution: seedKey(t, keys.SchemeEd25519, b+100),
	}
	f.author = types.AuthorFromPublicKey(f.consensus.PublicKey())
	f.verifier = types.ValidatorVerifier{Validators: []types.ValidatorConsensusInfo{{
		Address:     f.author,
		PublicKey:   f.consensus.PublicKey(),
		VotingPower: 1,
	}}}
	f.genesisLI = types.LedgerInfo{CommitInfo: types.BlockInfo{
		Epoch:          0,
		ID:             types.HashBytes([]byte("genesis-ledger")),
		NextEpochState: &types.EpochState{Epoch: 1, Verifier: f.verifier},
	}}
	w, err := types.NewWaypoint(f.genesisLI)
	if err != nil {
		t.Fatalf("NewWaypoint: %v", err)
	}
	f.waypoint = w
	f.proof = types.EpochChangeProof{LedgerInfoWithSigs: []types.LedgerInfoWithSignatures{{LedgerInfo: f.genesisLI}}}
	f.genesis = types.BlockInfo{Epoch: 1, Round: 0, ID: types.HashBytes([]byte("genesis-block"))}
	return f
}

func (f *fixture) testConfig(backend config.Backend, kind config.ServiceKind) config.SafetyRulesConfig {
	cfg := config.Default()
	cfg.Backend = backend
	cfg.Service.Kind = kind
	w := f.waypoint
	cfg.Test = &config.TestConfig{
		Author:       f.author,
		ConsensusKey: f.consensus,
		ExecutionKey: f.execution,
		Waypoint:     &w,
	}
	return cfg
}

func (f *fixture) storage(t *testing.T) *PersistentSafetyStorage {
	t.Helper()
	s, err := InitializePersistentStorage(memory.New(), f.author, f.consensus, f.execution, f.waypoint, true)
	if err != nil {
		t.Fatalf("InitializePersistentStorage: %v", err)
	}
	return s
}

func (f *fixture) genesisQC() types.QuorumCert {
	return types.GenesisQuorumCert(f.genesis)
}

// proposal builds a signed block at round on top of qc.
func (f *fixture) proposal(t *testing.T, round uint64, qc types.QuorumCert) types.VoteProposal {
	t.Helper()
	data := types.BlockData{
		Epoch:          1,
		Round:          round,
		TimestampUsecs: round * 1000,
		QuorumCert:     qc,
		Author:         f.author,
	}
	return types.VoteProposal{
		Block:           f.signBlock(t, data),
		ExecutedStateID: types.HashBytes([]byte{byte(round)}),
		Version:         round,
	}
}

func (f *fixture) signBlock(t *testing.T, data types.BlockData) types.Block {
	t.Helper()
	h := data.Hash()
	sig, err := f.consensus.Sign(h[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return types.Block{Data: data, Signature: sig}
}

// endEpoch returns a proof that extends f.proof with a ledger info ending
// epoch 1 at version, signed by f.
func (f *fixture) endEpoch(t *testing.T, version uint64) types.EpochChangeProof {
	t.Helper()
	li := types.LedgerInfo{CommitInfo: types.BlockInfo{
		Epoch:          1,
		Round:          version,
		ID:             types.HashBytes([]byte("epoch-1-end")),
		Version:        version,
		NextEpochState: &types.EpochState{Epoch: 2, Verifier: f.verifier},
	}}
	h := li.Hash()
	sig, err := f.consensus.Sign(h[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	proof := types.EpochChangeProof{LedgerInfoWithSigs: append([]types.LedgerInfoWithSignatures(nil), f.proof.LedgerInfoWithSigs...)}
	proof.LedgerInfoWithSigs = append(proof.LedgerInfoWithSigs, types.LedgerInfoWithSignatures{
		LedgerInfo: li,
		Signatures: []types.AuthorSignature{{Author: f.author, Signature: sig}},
	})
	return proof
}

// qcFromVote certifies the block a vote was cast for. With a single
// validator one vote is a quorum.
func qcFromVote(v types.Vote) types.QuorumCert {
	return types.QuorumCert{
		VoteData: v.VoteData,
		SignedLedgerInfo: types.LedgerInfoWithSignatures{
			LedgerInfo: v.LedgerInfo,
			Signatures: []types.AuthorSignature{{Author: v.Author, Signature: v.Signature}},
		},
	}
}

func onDiskBackend(t *testing.T) config.Backend {
	t.Helper()
	return config.Backend{Type: "on_disk", Config: map[string]string{"path": filepath.Join(t.TempDir(), "secure_storage.json")}}
}

// spyRules records how many calls overlap. inner may be nil. delay applies
// to slowOn, or to every operation when slowOn is empty.
type spyRules struct {
	inner   TSafetyRules
	delay   time.Duration
	slowOn  string
	panicOn string

	active atomic.Int32
	max    atomic.Int32
	calls  atomic.Int32
}

func (p *spyRules) enter(op string) func() {
	n := p.active.Add(1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			break
		}
	}
	p.calls.Add(1)
	if p.delay > 0 && (p.slowOn == "" || p.slowOn == op) {
		time.Sleep(p.delay)
	}
	if op == p.panicOn {
		p.active.Add(-1)
		panic("spy: " + op)
	}
	return func() { p.active.Add(-1) }
}

func (p *spyRules) Initialize(proof types.EpochChangeProof) error {
	defer p.enter(opInitialize)()
	if p.inner == nil {
		return nil
	}
	return p.inner.Initialize(proof)
}

func (p *spyRules) ConsensusState() (types.ConsensusState, error) {
	defer p.enter(opConsensusState)()
	if p.inner == nil {
		return types.ConsensusState{}, nil
	}
	return p.inner.ConsensusState()
}

func (p *spyRules) ConstructAndSignVote(proposal types.VoteProposal) (types.Vote, error) {
	defer p.enter(opConstructAndSignVote)()
	if p.inner == nil {
		return types.Vote{Signature: []byte("vote")}, nil
	}
	return p.inner.ConstructAndSignVote(proposal)
}

func (p *spyRules) SignProposal(block types.BlockData) ([]byte, error) {
	defer p.enter(opSignProposal)()
	if p.inner == nil {
		return []byte("proposal"), nil
	}
	return p.inner.SignProposal(block)
}

func (p *spyRules) SignTimeout(timeout types.Timeout) ([]byte, error) {
	defer p.enter(opSignTimeout)()
	if p.inner == nil {
		return []byte("timeout"), nil
	}
	return p.inner.SignTimeout(timeout)
}
