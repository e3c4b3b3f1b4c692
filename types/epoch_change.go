package types

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyEpochChangeProof = errors.New("types: empty epoch change proof")
	ErrNotEpochChange        = errors.New("types: ledger info does not end an epoch")
	ErrEpochGap              = errors.New("types: epoch change proof is not contiguous")
	ErrStaleEpochChangeProof = errors.New("types: epoch change proof does not reach the waypoint")
)

// EpochChangeProof is a chain of epoch-ending ledger infos.
type EpochChangeProof struct {
	LedgerInfoWithSigs []LedgerInfoWithSignatures
	More               bool
}

// Verify checks the proof against a trusted waypoint and returns the last
// ledger info, whose NextEpochState is the newest trusted validator set.
//
// Ledger infos older than the waypoint are skipped. The first remaining one
// must match the waypoint exactly; each later one must be signed by a quorum
// of the validator set established by its predecessor.
func (p EpochChangeProof) Verify(w Waypoint) (LedgerInfo, error) {
	if len(p.LedgerInfoWithSigs) == 0 {
		return LedgerInfo{}, ErrEmptyEpochChangeProof
	}
	var trusted *EpochState
	var last LedgerInfo
	for i, liws := range p.LedgerInfoWithSigs {
		li := liws.LedgerInfo
		if !li.EndsEpoch() {
			return LedgerInfo{}, fmt.Errorf("%w: entry %d", ErrNotEpochChange, i)
		}
		if trusted == nil {
			if li.Version() < w.Version {
				continue
			}
			if err := w.Verify(li); err != nil {
				return LedgerInfo{}, err
			}
		} else {
			if li.Epoch() != trusted.Epoch {
				return LedgerInfo{}, fmt.Errorf("%w: entry %d has epoch %d, expected %d", ErrEpochGap, i, li.Epoch(), trusted.Epoch)
			}
			if err := trusted.Verifier.VerifyQuorum(li.Hash(), liws.Signatures); err != nil {
				return LedgerInfo{}, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		trusted = li.CommitInfo.NextEpochState
		last = li
	}
	if trusted == nil {
		return LedgerInfo{}, ErrStaleEpochChangeProof
	}
	return last, nil
}
