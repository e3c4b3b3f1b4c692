// Package storage defines the key/value contract the safety rules persist
// their identity and voting state through.
//
// Backends live in subpackages and register themselves with kvregistry.
package storage

import "strings"

// Logical keys written by the safety rules.
const (
	KeyAuthor       = "author"
	KeyConsensusKey = "consensus_key"
	KeyExecutionKey = "execution_key"
	KeyWaypoint     = "waypoint"
	KeySafetyData   = "safety_data"
)

// KV is a small durable key/value store.
//
// Set must be durable when it returns nil: a crash after Set must not lose
// the value. Values are opaque bytes.
type KV interface {
	// Available reports whether the backend can serve reads and writes.
	Available() error
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// ValidateKey rejects keys that backends cannot store.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\x00/\\") {
		return ErrInvalidKey
	}
	return nil
}
