package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrInvalidWaypoint  = errors.New("types: invalid waypoint")
	ErrWaypointMismatch = errors.New("types: ledger info does not match waypoint")
)

// Waypoint is a trusted checkpoint: a ledger version and a content identifier
// of the epoch-ending ledger info at that version.
//
// The value is a CIDv1 (raw codec, sha2-256 multihash) over the canonical
// encoding of the fields that define the checkpoint.
type Waypoint struct {
	Version uint64
	Value   cid.Cid
}

// waypointConverter drops everything a waypoint must not depend on, such as
// ConsensusDataHash and signatures.
type waypointConverter struct {
	Epoch           uint64
	ID              HashValue
	ExecutedStateID HashValue
	Version         uint64
	TimestampUsecs  uint64
	NextEpochState  *EpochState
}

func waypointValue(li LedgerInfo) (cid.Cid, error) {
	ci := li.CommitInfo
	data, err := Marshal(waypointConverter{
		Epoch:           ci.Epoch,
		ID:              ci.ID,
		ExecutedStateID: ci.ExecutedStateID,
		Version:         ci.Version,
		TimestampUsecs:  ci.TimestampUsecs,
		NextEpochState:  ci.NextEpochState,
	})
	if err != nil {
		return cid.Undef, err
	}
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// NewWaypoint creates a waypoint for an epoch-ending ledger info.
func NewWaypoint(li LedgerInfo) (Waypoint, error) {
	if !li.EndsEpoch() {
		return Waypoint{}, fmt.Errorf("%w: ledger info at version %d does not end an epoch", ErrInvalidWaypoint, li.Version())
	}
	value, err := waypointValue(li)
	if err != nil {
		return Waypoint{}, fmt.Errorf("%w: %v", ErrInvalidWaypoint, err)
	}
	return Waypoint{Version: li.Version(), Value: value}, nil
}

// Verify checks that li is exactly the ledger info this waypoint names.
func (w Waypoint) Verify(li LedgerInfo) error {
	if li.Version() != w.Version {
		return fmt.Errorf("%w: version %d, waypoint version %d", ErrWaypointMismatch, li.Version(), w.Version)
	}
	value, err := waypointValue(li)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWaypointMismatch, err)
	}
	if !value.Equals(w.Value) {
		return fmt.Errorf("%w: value %s, waypoint %s", ErrWaypointMismatch, value, w.Value)
	}
	return nil
}

func (w Waypoint) IsZero() bool {
	return w.Version == 0 && !w.Value.Defined()
}

// String renders "<version>:<cid>".
func (w Waypoint) String() string {
	if !w.Value.Defined() {
		return strconv.FormatUint(w.Version, 10) + ":"
	}
	return strconv.FormatUint(w.Version, 10) + ":" + w.Value.String()
}

// ParseWaypoint parses the form produced by String.
func ParseWaypoint(s string) (Waypoint, error) {
	version, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Waypoint{}, fmt.Errorf("%w: expected <version>:<cid>, got %q", ErrInvalidWaypoint, s)
	}
	v, err := strconv.ParseUint(version, 10, 64)
	if err != nil {
		return Waypoint{}, fmt.Errorf("%w: version: %v", ErrInvalidWaypoint, err)
	}
	if value == "" {
		return Waypoint{Version: v}, nil
	}
	id, err := cid.Decode(value)
	if err != nil {
		return Waypoint{}, fmt.Errorf("%w: value: %v", ErrInvalidWaypoint, err)
	}
	return Waypoint{Version: v, Value: id}, nil
}

func (w Waypoint) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *Waypoint) UnmarshalText(text []byte) error {
	parsed, err := ParseWaypoint(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

func (w Waypoint) MarshalBinary() ([]byte, error) {
	return w.MarshalText()
}

func (w *Waypoint) UnmarshalBinary(data []byte) error {
	return w.UnmarshalText(data)
}
