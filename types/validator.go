package types

import (
	"errors"
	"fmt"

	"xdao.co/safetyrules/keys"
)

var (
	ErrUnknownAuthor          = errors.New("types: unknown author")
	ErrInvalidSignature       = errors.New("types: invalid signature")
	ErrTooLittleVotingPower   = errors.New("types: too little voting power")
	ErrDuplicateSignature     = errors.New("types: duplicate signature")
	ErrQuorumCertDataMismatch = errors.New("types: quorum cert ledger info does not match vote data")
	ErrQuorumCertRounds       = errors.New("types: quorum cert parent round must precede certified round")
)

// ValidatorConsensusInfo is one member of a validator set.
type ValidatorConsensusInfo struct {
	Address     Author
	PublicKey   keys.PublicKey
	VotingPower uint64
}

// ValidatorVerifier verifies signatures against a validator set.
type ValidatorVerifier struct {
	Validators []ValidatorConsensusInfo
}

// EpochState is the validator set in force for an epoch.
type EpochState struct {
	Epoch    uint64
	Verifier ValidatorVerifier
}

func (v ValidatorVerifier) Lookup(author Author) (ValidatorConsensusInfo, bool) {
	for _, info := range v.Validators {
		if info.Address == author {
			return info, true
		}
	}
	return ValidatorConsensusInfo{}, false
}

func (v ValidatorVerifier) TotalVotingPower() uint64 {
	var total uint64
	for _, info := range v.Validators {
		total += info.VotingPower
	}
	return total
}

// QuorumVotingPower is the power needed for a quorum: more than two thirds.
func (v ValidatorVerifier) QuorumVotingPower() uint64 {
	return v.TotalVotingPower()*2/3 + 1
}

// Verify checks a single signature from author over msg.
func (v ValidatorVerifier) Verify(author Author, msg HashValue, sig []byte) error {
	info, ok := v.Lookup(author)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAuthor, author.ShortString())
	}
	if !info.PublicKey.Verify(msg[:], sig) {
		return fmt.Errorf("%w: from %s", ErrInvalidSignature, author.ShortString())
	}
	return nil
}

// VerifyQuorum checks every signature and that together they reach a quorum.
func (v ValidatorVerifier) VerifyQuorum(msg HashValue, sigs []AuthorSignature) error {
	seen := make(map[Author]struct{}, len(sigs))
	var power uint64
	for _, s := range sigs {
		if _, dup := seen[s.Author]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSignature, s.Author.ShortString())
		}
		seen[s.Author] = struct{}{}
		if err := v.Verify(s.Author, msg, s.Signature); err != nil {
			return err
		}
		info, _ := v.Lookup(s.Author)
		power += info.VotingPower
	}
	if need := v.QuorumVotingPower(); power < need {
		return fmt.Errorf("%w: got %d, need %d", ErrTooLittleVotingPower, power, need)
	}
	return nil
}
