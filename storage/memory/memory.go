// Package memory provides a process-local KV. Its contents do not survive a
// restart, so it is only suitable for tests and ephemeral validators.
package memory

import (
	"sync"

	"xdao.co/safetyrules/storage"
	"xdao.co/safetyrules/storage/kvregistry"
)

const BackendName = "in_memory"

func init() {
	kvregistry.MustRegister(kvregistry.Backend{
		Name:        BackendName,
		Description: "Process-local map; lost on restart",
		Open: func(map[string]string) (storage.KV, func() error, error) {
			return New(), nil, nil
		},
	})
}

type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func New() *KV {
	return &KV{data: make(map[string][]byte)}
}

func (m *KV) Available() error { return nil }

func (m *KV) Get(key string) ([]byte, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *KV) Set(key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}
