// Package kvregistry maps the backend names used in safety-rules configuration
// to compiled-in storage.KV implementations.
//
// Backends register from init():
//
//	kvregistry.MustRegister(kvregistry.Backend{ ... })
//
// so a binary only offers the backends it imports.
package kvregistry

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"xdao.co/safetyrules/storage"
)

// Backend describes one storage implementation.
type Backend struct {
	Name        string
	Description string

	// ConfigKeys lists the keys Open understands. Any other key in the
	// backend config is rejected before Open runs.
	ConfigKeys []string

	// Open builds the KV. The returned close function may be nil.
	Open func(cfg map[string]string) (storage.KV, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("kvregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("kvregistry: backend %q has no Open", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, dup := backends[b.Name]; dup {
		return fmt.Errorf("kvregistry: backend %q registered twice", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister panics if Register fails.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns every registered backend ordered by name.
func List() []Backend {
	mu.RLock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Names() []string {
	var names []string
	for _, b := range List() {
		names = append(names, b.Name)
	}
	return names
}

// Open validates cfg against the named backend and opens it. On success the
// close function is never nil.
func Open(name string, cfg map[string]string) (storage.KV, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q (compiled in: %s)", name, strings.Join(Names(), ", "))
	}
	for k := range cfg {
		if !slices.Contains(b.ConfigKeys, k) {
			return nil, nil, fmt.Errorf("backend %q: unsupported config key %q", name, k)
		}
	}

	kv, closeFn, err := b.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open backend %q: %w", name, err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return kv, closeFn, nil
}
