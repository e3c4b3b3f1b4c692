package safetyrules

import (
	"fmt"
	"log/slog"
	"sync"

	"xdao.co/safetyrules/types"
)

// lockedRules is the local topology: one evaluator shared by every client
// behind an exclusive lock. Readers take the write lock too, since every
// operation may touch SafetyData.
type lockedRules struct {
	mu       sync.RWMutex
	rules    TSafetyRules
	poisoned bool
	log      *slog.Logger
}

func newLockedRules(rules TSafetyRules, log *slog.Logger) *lockedRules {
	return &lockedRules{rules: rules, log: log}
}

// do runs fn under the lock. A panic poisons the evaluator: its state may
// be half-updated, so no later call may reach it.
func (l *lockedRules) do(op string, fn func(TSafetyRules) error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.poisoned {
		return newError(KindInternal, op, ErrPoisoned)
	}
	defer func() {
		if r := recover(); r != nil {
			l.poisoned = true
			l.log.Error("evaluator panicked", "op", op, "panic", r)
			err = newError(KindInternal, op, fmt.Errorf("%w: %v", ErrPoisoned, r))
		}
	}()
	return fn(l.rules)
}

// LocalClient calls the shared evaluator directly.
type LocalClient struct {
	internal *lockedRules
}

func (c *LocalClient) Initialize(proof types.EpochChangeProof) error {
	return c.internal.do(opInitialize, func(r TSafetyRules) error {
		return r.Initialize(proof)
	})
}

func (c *LocalClient) ConsensusState() (types.ConsensusState, error) {
	var cs types.ConsensusState
	err := c.internal.do(opConsensusState, func(r TSafetyRules) (err error) {
		cs, err = r.ConsensusState()
		return err
	})
	return cs, err
}

func (c *LocalClient) ConstructAndSignVote(proposal types.VoteProposal) (types.Vote, error) {
	var v types.Vote
	err := c.internal.do(opConstructAndSignVote, func(r TSafetyRules) (err error) {
		v, err = r.ConstructAndSignVote(proposal)
		return err
	})
	return v, err
}

func (c *LocalClient) SignProposal(block types.BlockData) ([]byte, error) {
	var sig []byte
	err := c.internal.do(opSignProposal, func(r TSafetyRules) (err error) {
		sig, err = r.SignProposal(block)
		return err
	})
	return sig, err
}

func (c *LocalClient) SignTimeout(timeout types.Timeout) ([]byte, error) {
	var sig []byte
	err := c.internal.do(opSignTimeout, func(r TSafetyRules) (err error) {
		sig, err = r.SignTimeout(timeout)
		return err
	})
	return sig, err
}

// lockedSerializer is the serializer topology: a SerializerService behind
// the same exclusive lock the local topology uses.
type lockedSerializer struct {
	mu       sync.RWMutex
	service  *SerializerService
	poisoned bool
	log      *slog.Logger
}

func newLockedSerializer(service *SerializerService, log *slog.Logger) *lockedSerializer {
	return &lockedSerializer{service: service, log: log}
}

func (l *lockedSerializer) handle(request []byte) (resp []byte, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.poisoned {
		return nil, newError(KindInternal, "serializer", ErrPoisoned)
	}
	defer func() {
		if r := recover(); r != nil {
			l.poisoned = true
			l.log.Error("evaluator panicked", "panic", r)
			resp, err = nil, newError(KindInternal, "serializer", fmt.Errorf("%w: %v", ErrPoisoned, r))
		}
	}()
	return l.service.Handle(request)
}

func (l *lockedSerializer) client() *SerializerClient {
	return newSerializerClient(l.handle)
}
