package safetyrules

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindStartup errors are fatal: no client may be handed out.
	KindStartup    Kind = "Startup"
	// KindTransport covers timeouts and connection failures.
	KindTransport  Kind = "Transport"
	// KindRefusal means the evaluator judged the request unsafe. State is unchanged.
	KindRefusal    Kind = "Refusal"
	// KindMembership is returned by Initialize after it has moved to the
	// proof's epoch when this validator cannot sign in that epoch. The new
	// waypoint and epoch are kept; InValidatorSet reports false.
	KindMembership Kind = "Membership"
	KindInternal   Kind = "Internal"
	KindStorage    Kind = "Storage"
	KindCodec      Kind = "Codec"
)

var (
	ErrNotInitialized          = errors.New("safetyrules: not initialized")
	ErrIncorrectEpoch          = errors.New("safetyrules: incorrect epoch")
	ErrIncorrectLastVotedRound = errors.New("safetyrules: round is not above last voted round")
	ErrIncorrectPreferredRound = errors.New("safetyrules: round is below preferred round")
	ErrInvalidProposal         = errors.New("safetyrules: invalid proposal")
	ErrInvalidQuorumCert       = errors.New("safetyrules: invalid quorum certificate")
	ErrInvalidEpochChangeProof = errors.New("safetyrules: invalid epoch change proof")
	ErrWaypointOutOfDate       = errors.New("safetyrules: waypoint is older than stored epoch")
	ErrValidatorNotInSet       = errors.New("safetyrules: validator is not in the validator set")
	ErrValidatorKeyNotFound    = errors.New("safetyrules: consensus key does not match validator set")
	ErrStorageUnavailable      = errors.New("safetyrules: storage backend unavailable")
	ErrStorageUninitialized    = errors.New("safetyrules: storage is not initialized and no initial safety rules config is provided")
	ErrIncompleteTestConfig    = errors.New("safetyrules: test config is incomplete")
	ErrIncompleteIdentity      = errors.New("safetyrules: identity blob is incomplete")
	ErrUnknownService          = errors.New("safetyrules: unimplemented safety rules service")
	ErrTimeout                 = errors.New("safetyrules: request timed out")
	ErrNetwork                 = errors.New("safetyrules: network error")
	ErrPoisoned                = errors.New("safetyrules: evaluator panicked; service is poisoned")
	ErrClosed                  = errors.New("safetyrules: service closed")
	ErrStaleRequest            = errors.New("safetyrules: stale request sequence")
	ErrUnknownMethod           = errors.New("safetyrules: unknown method")
	ErrMalformedMessage        = errors.New("safetyrules: malformed message")
	ErrUnexpectedResponse      = errors.New("safetyrules: unexpected response")
)

// Error is the package's structured error type.
//
// Op names the client operation (e.g. "construct_and_sign_vote") or the
// startup phase. Err carries one of the sentinels above; match it with
// errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func refusal(op string, sentinel error, format string, args ...any) error {
	return newError(KindRefusal, op, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}

// IsKind reports whether err is (or wraps) an *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if unknown.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}

// wireCodes names every sentinel that may cross a serializer boundary.
var wireCodes = map[string]error{
	"not_initialized":         ErrNotInitialized,
	"incorrect_epoch":         ErrIncorrectEpoch,
	"incorrect_last_voted":    ErrIncorrectLastVotedRound,
	"incorrect_preferred":     ErrIncorrectPreferredRound,
	"invalid_proposal":        ErrInvalidProposal,
	"invalid_quorum_cert":     ErrInvalidQuorumCert,
	"invalid_epoch_change":    ErrInvalidEpochChangeProof,
	"waypoint_out_of_date":    ErrWaypointOutOfDate,
	"validator_not_in_set":    ErrValidatorNotInSet,
	"validator_key_not_found": ErrValidatorKeyNotFound,
	"storage_unavailable":     ErrStorageUnavailable,
	"timeout":                 ErrTimeout,
	"network":                 ErrNetwork,
	"poisoned":                ErrPoisoned,
	"closed":                  ErrClosed,
	"stale_request":           ErrStaleRequest,
	"unknown_method":          ErrUnknownMethod,
	"malformed_message":       ErrMalformedMessage,
	"unexpected_response":     ErrUnexpectedResponse,
}

// WireError is an error as carried inside a SafetyRulesOutput.
type WireError struct {
	Kind    Kind
	Code    string `cbor:",omitempty"`
	Message string
}

// remoteError keeps the remote message while still matching the local
// sentinel with errors.Is.
type remoteError struct {
	msg   string
	cause error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.cause }

func toWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	w := &WireError{Kind: KindOf(err), Message: err.Error()}
	if w.Kind == "" {
		w.Kind = KindInternal
	}
	for code, sentinel := range wireCodes {
		if errors.Is(err, sentinel) {
			w.Code = code
			break
		}
	}
	return w
}

func (w *WireError) toError() error {
	if w == nil {
		return nil
	}
	return &Error{Kind: w.Kind, Err: &remoteError{msg: w.Message, cause: wireCodes[w.Code]}}
}
