package safetyrules

import (
	"fmt"

	"xdao.co/safetyrules/config"
	"xdao.co/safetyrules/storage/kvregistry"

	// in_memory is config.Default's backend.
	_ "xdao.co/safetyrules/storage/memory"
)

// Bootstrap opens the configured backend and returns storage that holds a
// complete identity.
//
//   - A test config always (re-)initializes storage from its keys.
//   - Otherwise storage that already has an author is returned untouched.
//   - Otherwise the initial identity blob initializes it.
//
// Every failure is a KindStartup error and must abort the validator before
// any client is handed out.
func Bootstrap(cfg config.SafetyRulesConfig, opts ...Option) (*PersistentSafetyStorage, error) {
	o := buildOptions(opts)
	log := o.logger.With("backend", cfg.Backend.Type)

	kv, closeFn, err := kvregistry.Open(cfg.Backend.Type, cfg.Backend.Config)
	if err != nil {
		return nil, newError(KindStartup, "bootstrap", fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
	}
	fail := func(err error) (*PersistentSafetyStorage, error) {
		_ = closeFn()
		return nil, newError(KindStartup, "bootstrap", err)
	}
	if err := kv.Available(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
	}

	var s *PersistentSafetyStorage
	switch {
	case cfg.Test != nil:
		t := cfg.Test
		switch {
		case t.ConsensusKey == nil:
			return fail(fmt.Errorf("%w: missing consensus key", ErrIncompleteTestConfig))
		case t.ExecutionKey == nil:
			return fail(fmt.Errorf("%w: missing execution key", ErrIncompleteTestConfig))
		case t.Waypoint == nil:
			return fail(fmt.Errorf("%w: missing waypoint", ErrIncompleteTestConfig))
		}
		s, err = InitializePersistentStorage(kv, t.Author, t.ConsensusKey, t.ExecutionKey, *t.Waypoint, cfg.EnableCachedSafetyData)
		if err != nil {
			return fail(err)
		}
		log.Info("initialized safety storage from test config", "author", t.Author.ShortString(), "waypoint", t.Waypoint.String())

	default:
		s = NewPersistentStorage(kv, cfg.EnableCachedSafetyData)
		if author, err := s.Author(); err == nil {
			log.Info("using initialized safety storage", "author", author.ShortString())
			break
		}
		if cfg.InitialSafetyRules == nil {
			return fail(ErrStorageUninitialized)
		}
		initial := cfg.InitialSafetyRules
		blob, err := config.LoadIdentityBlob(initial.IdentityBlobPath)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrIncompleteIdentity, err))
		}
		if err := blob.Complete(); err != nil {
			return fail(fmt.Errorf("%w: %v", ErrIncompleteIdentity, err))
		}
		s, err = InitializePersistentStorage(kv, *blob.AccountAddress, blob.ConsensusPrivateKey, blob.AccountPrivateKey, initial.Waypoint, cfg.EnableCachedSafetyData)
		if err != nil {
			return fail(err)
		}
		log.Info("initialized safety storage from identity blob", "author", blob.AccountAddress.ShortString(), "waypoint", initial.Waypoint.String())
	}

	s.closeFn = closeFn
	return s.withLogger(log), nil
}
