// Package ondisk stores the whole KV as one JSON file, rewritten atomically
// on every Set.
package ondisk

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"xdao.co/safetyrules/storage"
	"xdao.co/safetyrules/storage/kvregistry"
)

const BackendName = "on_disk"

func init() {
	kvregistry.MustRegister(kvregistry.Backend{
		Name:        BackendName,
		Description: "Single JSON file rewritten atomically on every write",
		ConfigKeys:  []string{"path"},
		Open: func(cfg map[string]string) (storage.KV, func() error, error) {
			path := cfg["path"]
			if path == "" {
				return nil, nil, fmt.Errorf("on_disk: missing config key %q", "path")
			}
			kv, err := New(path)
			return kv, nil, err
		},
	})
}

// KV is a file-backed key/value store.
//
// The file is created with mode 0600 and replaced by write-then-rename, so a
// crash leaves either the old or the new contents, never a torn file.
type KV struct {
	path string

	mu   sync.Mutex
	data map[string][]byte
}

// New opens the store at path, creating the parent directory if needed.
// An existing file is loaded; a missing one starts empty.
func New(path string) (*KV, error) {
	if path == "" {
		return nil, errors.New("ondisk: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	kv := &KV{path: path, data: map[string][]byte{}}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(b) > 0 {
			if err := json.Unmarshal(b, &kv.data); err != nil {
				return nil, fmt.Errorf("ondisk: decode %s: %w", path, err)
			}
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}
	return kv, nil
}

// Available checks that the directory holding the file is writable.
func (k *KV) Available() error {
	dir := filepath.Dir(k.path)
	f, err := os.CreateTemp(dir, ".avail-*")
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

func (k *KV) Get(key string) ([]byte, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (k *KV) Set(key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	prev, had := k.data[key]
	k.data[key] = append([]byte(nil), value...)
	if err := k.flush(); err != nil {
		if had {
			k.data[key] = prev
		} else {
			delete(k.data, key)
		}
		return err
	}
	return nil
}

func (k *KV) flush() error {
	b, err := json.MarshalIndent(k.data, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(k.path), ".kv-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, k.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
