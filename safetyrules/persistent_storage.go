package safetyrules

import (
	"fmt"
	"log/slog"

	"xdao.co/safetyrules/keys"
	"xdao.co/safetyrules/storage"
	"xdao.co/safetyrules/types"
)

// PersistentSafetyStorage keeps the validator identity, its keys, the
// trusted waypoint and the SafetyData in a storage.KV.
//
// Identity and keys are stored in their text forms; SafetyData is stored in
// its canonical CBOR encoding. It is not safe for concurrent use: the
// topology that owns the evaluator serializes access.
type PersistentSafetyStorage struct {
	kv          storage.KV
	closeFn     func() error
	enableCache bool
	cached      *types.SafetyData
	log         *slog.Logger
}

// NewPersistentStorage wraps kv without writing to it.
func NewPersistentStorage(kv storage.KV, enableCache bool) *PersistentSafetyStorage {
	return &PersistentSafetyStorage{kv: kv, enableCache: enableCache, log: slog.New(slog.DiscardHandler)}
}

// InitializePersistentStorage writes a complete identity and fresh
// SafetyData for epoch 1, overwriting whatever kv held before.
func InitializePersistentStorage(
	kv storage.KV,
	author types.Author,
	consensusKey *keys.PrivateKey,
	executionKey *keys.PrivateKey,
	waypoint types.Waypoint,
	enableCache bool,
) (*PersistentSafetyStorage, error) {
	s := NewPersistentStorage(kv, enableCache)
	if consensusKey == nil || executionKey == nil {
		return nil, newError(KindStorage, "initialize_storage", fmt.Errorf("%w: missing key", ErrIncompleteIdentity))
	}
	// SafetyData goes first so a storage that has an author always has state.
	if err := s.SetSafetyData(types.NewSafetyData(1)); err != nil {
		return nil, err
	}
	if err := s.set(storage.KeyConsensusKey, []byte(consensusKey.Encode())); err != nil {
		return nil, err
	}
	if err := s.set(storage.KeyExecutionKey, []byte(executionKey.Encode())); err != nil {
		return nil, err
	}
	if err := s.SetWaypoint(waypoint); err != nil {
		return nil, err
	}
	if err := s.set(storage.KeyAuthor, []byte(author.String())); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PersistentSafetyStorage) withLogger(l *slog.Logger) *PersistentSafetyStorage {
	if l != nil {
		s.log = l
	}
	return s
}

// KV exposes the underlying store.
func (s *PersistentSafetyStorage) KV() storage.KV { return s.kv }

// Close releases the backend, if it was opened by Bootstrap.
func (s *PersistentSafetyStorage) Close() error {
	if s == nil || s.closeFn == nil {
		return nil
	}
	fn := s.closeFn
	s.closeFn = nil
	return fn()
}

func (s *PersistentSafetyStorage) get(key string) ([]byte, error) {
	b, err := s.kv.Get(key)
	if err != nil {
		return nil, newError(KindStorage, "get "+key, err)
	}
	return b, nil
}

func (s *PersistentSafetyStorage) set(key string, value []byte) error {
	if err := s.kv.Set(key, value); err != nil {
		return newError(KindStorage, "set "+key, err)
	}
	return nil
}

func (s *PersistentSafetyStorage) Author() (types.Author, error) {
	b, err := s.get(storage.KeyAuthor)
	if err != nil {
		return types.Author{}, err
	}
	a, err := types.ParseAuthor(string(b))
	if err != nil {
		return types.Author{}, newError(KindCodec, "decode author", err)
	}
	return a, nil
}

// ConsensusKey loads the consensus private key.
func (s *PersistentSafetyStorage) ConsensusKey() (*keys.PrivateKey, error) {
	return s.privateKey(storage.KeyConsensusKey)
}

// ExecutionKey loads the execution private key.
func (s *PersistentSafetyStorage) ExecutionKey() (*keys.PrivateKey, error) {
	return s.privateKey(storage.KeyExecutionKey)
}

// ConsensusPublicKey returns the public half of the consensus key.
func (s *PersistentSafetyStorage) ConsensusPublicKey() (keys.PublicKey, error) {
	k, err := s.ConsensusKey()
	if err != nil {
		return keys.PublicKey{}, err
	}
	return k.PublicKey(), nil
}

func (s *PersistentSafetyStorage) privateKey(key string) (*keys.PrivateKey, error) {
	b, err := s.get(key)
	if err != nil {
		return nil, err
	}
	k, err := keys.ParsePrivateKey(string(b))
	if err != nil {
		return nil, newError(KindCodec, "decode "+key, err)
	}
	return k, nil
}

// Sign signs msg with the consensus key without handing the key out.
func (s *PersistentSafetyStorage) Sign(msg []byte) ([]byte, error) {
	k, err := s.ConsensusKey()
	if err != nil {
		return nil, err
	}
	sig, err := k.Sign(msg)
	if err != nil {
		return nil, newError(KindInternal, "sign", err)
	}
	return sig, nil
}

func (s *PersistentSafetyStorage) Waypoint() (types.Waypoint, error) {
	b, err := s.get(storage.KeyWaypoint)
	if err != nil {
		return types.Waypoint{}, err
	}
	w, err := types.ParseWaypoint(string(b))
	if err != nil {
		return types.Waypoint{}, newError(KindCodec, "decode waypoint", err)
	}
	return w, nil
}

func (s *PersistentSafetyStorage) SetWaypoint(w types.Waypoint) error {
	if err := s.set(storage.KeyWaypoint, []byte(w.String())); err != nil {
		return err
	}
	s.log.Info("updated waypoint", "waypoint", w.String())
	return nil
}

// SafetyData returns the stored voting state, from memory when caching is on.
func (s *PersistentSafetyStorage) SafetyData() (types.SafetyData, error) {
	if s.enableCache && s.cached != nil {
		return *s.cached, nil
	}
	b, err := s.get(storage.KeySafetyData)
	if err != nil {
		return types.SafetyData{}, err
	}
	var sd types.SafetyData
	if err := types.Unmarshal(b, &sd); err != nil {
		return types.SafetyData{}, newError(KindCodec, "decode safety data", err)
	}
	if s.enableCache {
		s.cached = &sd
	}
	return sd, nil
}

// SetSafetyData persists sd. The cache only changes once the write succeeded.
func (s *PersistentSafetyStorage) SetSafetyData(sd types.SafetyData) error {
	b, err := types.Marshal(sd)
	if err != nil {
		return newError(KindCodec, "encode safety data", err)
	}
	if err := s.set(storage.KeySafetyData, b); err != nil {
		s.cached = nil
		return err
	}
	if s.enableCache {
		s.cached = &sd
	}
	return nil
}
