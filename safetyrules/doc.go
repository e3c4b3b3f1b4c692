// Package safetyrules guards a validator's consensus signing key.
//
// A Manager bootstraps persistent safety storage, builds one SafetyRules
// evaluator from it and exposes that evaluator through one of four
// topologies:
//
//   - local: shared in-process behind an exclusive lock
//   - serializer: as local, but every call is encoded and decoded
//   - thread: owned by a dedicated goroutine, calls bounded by a timeout
//   - process: a remote safety-rules server reached over gRPC
//
// Every topology hands out clients implementing TSafetyRules, and every
// call on every client is serialized against the single evaluator.
//
// Storage backends are found by name in storage/kvregistry. Only in_memory is
// linked in by this package; a binary that configures on_disk or sqlite must
// import storage/ondisk or storage/sqlite for their registration to run.
//
// Errors are *Error values; use IsKind to tell startup, transport, refusal
// and internal failures apart. Transport failures are never retried here:
// a timed-out call may or may not have taken effect on the evaluator side.
// Retrying the identical request on the same client is safe, because the
// serializer recognizes the replay and returns the original response.
package safetyrules
