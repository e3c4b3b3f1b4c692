package safetyrules

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"xdao.co/safetyrules/config"
)

// Manager owns one evaluator in one topology and hands out clients to it.
type Manager struct {
	kind config.ServiceKind
	log  *slog.Logger

	local      *lockedRules
	serializer *lockedSerializer
	thread     *ThreadService
	process    *ProcessService

	storage *PersistentSafetyStorage
}

// NewManager selects the topology from cfg.
//
// The process topology only needs the server address and timeout; the
// remote server owns storage. Every other topology bootstraps storage
// first. Errors are KindStartup: the caller must abort.
func NewManager(cfg config.SafetyRulesConfig, opts ...Option) (*Manager, error) {
	o := buildOptions(opts)
	kind := cfg.Service.Kind
	if kind == config.ServiceProcess {
		return NewProcessManager(cfg.Service.ServerAddress, cfg.NetworkTimeout(), opts...)
	}
	if !kind.Valid() {
		return nil, newError(KindStartup, "manager", fmt.Errorf("%w: %q", ErrUnknownService, kind))
	}

	storage, err := Bootstrap(cfg, opts...)
	if err != nil {
		return nil, err
	}
	verify, export := cfg.VerifyVoteProposalSignature, cfg.ExportConsensusKey

	var m *Manager
	switch kind {
	case config.ServiceLocal:
		m = NewLocalManager(storage, verify, export, opts...)
	case config.ServiceSerializer:
		m = NewSerializerManager(storage, verify, export, opts...)
	case config.ServiceThread:
		m = NewThreadManager(storage, verify, export, cfg.NetworkTimeout(), opts...)
	}
	m.storage = storage
	o.logger.Info("safety rules manager started", "service", string(kind))
	return m, nil
}

// MustNewManager is like NewManager but panics on error. Continuing with
// ambiguous key material is never safe.
func MustNewManager(cfg config.SafetyRulesConfig, opts ...Option) *Manager {
	m, err := NewManager(cfg, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func NewLocalManager(storage *PersistentSafetyStorage, verifyVoteProposalSignature, exportConsensusKey bool, opts ...Option) *Manager {
	rules := NewSafetyRules(storage, verifyVoteProposalSignature, exportConsensusKey, opts...)
	return newLocalManager(rules, opts...)
}

func newLocalManager(rules TSafetyRules, opts ...Option) *Manager {
	o := buildOptions(opts)
	return &Manager{kind: config.ServiceLocal, log: o.logger, local: newLockedRules(rules, o.logger)}
}

func NewSerializerManager(storage *PersistentSafetyStorage, verifyVoteProposalSignature, exportConsensusKey bool, opts ...Option) *Manager {
	rules := NewSafetyRules(storage, verifyVoteProposalSignature, exportConsensusKey, opts...)
	return newSerializerManager(rules, opts...)
}

func newSerializerManager(rules TSafetyRules, opts ...Option) *Manager {
	o := buildOptions(opts)
	return &Manager{
		kind:       config.ServiceSerializer,
		log:        o.logger,
		serializer: newLockedSerializer(NewSerializerService(rules), o.logger),
	}
}

func NewThreadManager(storage *PersistentSafetyStorage, verifyVoteProposalSignature, exportConsensusKey bool, timeout time.Duration, opts ...Option) *Manager {
	rules := NewSafetyRules(storage, verifyVoteProposalSignature, exportConsensusKey, opts...)
	return newThreadManager(rules, timeout, opts...)
}

func newThreadManager(rules TSafetyRules, timeout time.Duration, opts ...Option) *Manager {
	o := buildOptions(opts)
	return &Manager{kind: config.ServiceThread, log: o.logger, thread: NewThreadService(rules, timeout, opts...)}
}

// NewProcessManager connects to a remote safety rules server. It does not
// touch local storage.
func NewProcessManager(addr string, timeout time.Duration, opts ...Option) (*Manager, error) {
	o := buildOptions(opts)
	p, err := NewProcessService(addr, timeout, opts...)
	if err != nil {
		return nil, err
	}
	return &Manager{kind: config.ServiceProcess, log: o.logger, process: p}, nil
}

// Kind is the topology in use.
func (m *Manager) Kind() config.ServiceKind { return m.kind }

// Client returns a new client. Clients are cheap and may be requested any
// number of times; all of them reach the same evaluator.
func (m *Manager) Client() TSafetyRules {
	switch {
	case m.local != nil:
		return &LocalClient{internal: m.local}
	case m.serializer != nil:
		return m.serializer.client()
	case m.thread != nil:
		return m.thread.Client()
	default:
		return m.process.Client()
	}
}

// Close stops the thread worker or the process connection and releases
// storage opened by NewManager.
func (m *Manager) Close() error {
	var errs []error
	if m.thread != nil {
		errs = append(errs, m.thread.Close())
	}
	if m.process != nil {
		errs = append(errs, m.process.Close())
	}
	if m.storage != nil {
		errs = append(errs, m.storage.Close())
	}
	return errors.Join(errs...)
}
