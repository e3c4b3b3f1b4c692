package testkit

import (
	"bytes"
	"errors"
	"testing"

	"xdao.co/safetyrules/storage"
	"xdao.co/safetyrules/storage/kvregistry"
)

// NewKV constructs a fresh, empty KV instance for a test.
// The returned KV MUST be isolated from other tests.
type NewKV func(t *testing.T) storage.KV

// RunKVConformance checks the contract every backend must honor.
func RunKVConformance(t *testing.T, newKV NewKV) {
	t.Helper()

	t.Run("Available", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Available(); err != nil {
			t.Fatalf("Available failed: %v", err)
		}
	})

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		kv := newKV(t)
		want := []byte("hello, safety rules storage")
		if err := kv.Set(storage.KeySafetyData, want); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := kv.Get(storage.KeySafetyData)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch: got %q want %q", got, want)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set(storage.KeyWaypoint, []byte("first")); err != nil {
			t.Fatalf("Set(1) failed: %v", err)
		}
		if err := kv.Set(storage.KeyWaypoint, []byte("second")); err != nil {
			t.Fatalf("Set(2) failed: %v", err)
		}
		got, err := kv.Get(storage.KeyWaypoint)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "second" {
			t.Fatalf("expected overwrite, got %q", got)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		kv := newKV(t)
		_, err := kv.Get(storage.KeyAuthor)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set(storage.KeyConsensusKey, []byte("c")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := kv.Set(storage.KeyExecutionKey, []byte("e")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := kv.Get(storage.KeyConsensusKey)
		if err != nil || string(got) != "c" {
			t.Fatalf("Get consensus key: %q, %v", got, err)
		}
	})

	t.Run("CallerCannotMutateStoredValue", func(t *testing.T) {
		kv := newKV(t)
		v := []byte("abc")
		if err := kv.Set(storage.KeyAuthor, v); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		v[0] = 'x'
		got, err := kv.Get(storage.KeyAuthor)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		got[1] = 'y'
		again, err := kv.Get(storage.KeyAuthor)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(again) != "abc" {
			t.Fatalf("stored value was mutated: %q", again)
		}
	})

	t.Run("RejectInvalidKey", func(t *testing.T) {
		kv := newKV(t)
		if err := kv.Set("", []byte("x")); !errors.Is(err, storage.ErrInvalidKey) {
			t.Fatalf("Set empty key: got %v want ErrInvalidKey", err)
		}
		if _, err := kv.Get("../escape"); !errors.Is(err, storage.ErrInvalidKey) {
			t.Fatalf("Get path key: got %v want ErrInvalidKey", err)
		}
	})
}

// RunRegisteredConformance opens the named backend through kvregistry for
// every subtest and runs RunKVConformance against it.
func RunRegisteredConformance(t *testing.T, name string, cfg func(t *testing.T) map[string]string) {
	t.Helper()
	RunKVConformance(t, func(t *testing.T) storage.KV {
		t.Helper()
		kv, closeFn, err := kvregistry.Open(name, cfg(t))
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", name, err)
		}
		t.Cleanup(func() { _ = closeFn() })
		return kv
	})
}
