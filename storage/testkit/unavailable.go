package testkit

import (
	"xdao.co/safetyrules/storage"
	"xdao.co/safetyrules/storage/kvregistry"
)

// UnavailableBackend is registered by importing this package. Its KV reports
// itself unavailable and fails every operation.
const UnavailableBackend = "unavailable"

func init() {
	kvregistry.MustRegister(kvregistry.Backend{
		Name:        UnavailableBackend,
		Description: "Always unavailable (tests only)",
		Open: func(map[string]string) (storage.KV, func() error, error) {
			return Unavailable{}, nil, nil
		},
	})
}

type Unavailable struct{}

func (Unavailable) Available() error { return storage.ErrUnavailable }

func (Unavailable) Get(string) ([]byte, error) { return nil, storage.ErrUnavailable }

func (Unavailable) Set(string, []byte) error { return storage.ErrUnavailable }
