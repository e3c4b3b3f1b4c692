package types

// VoteProposal is the input to vote construction: a proposed block plus the
// execution result the voter attests to.
type VoteProposal struct {
	Block           Block
	ExecutedStateID HashValue
	Version         uint64
	NextEpochState  *EpochState `cbor:",omitempty"`
}

// ProposedBlockInfo is the BlockInfo a vote on this proposal certifies.
func (p VoteProposal) ProposedBlockInfo() BlockInfo {
	d := p.Block.Data
	return BlockInfo{
		Epoch:           d.Epoch,
		Round:           d.Round,
		ID:              d.Hash(),
		ExecutedStateID: p.ExecutedStateID,
		Version:         p.Version,
		TimestampUsecs:  d.TimestampUsecs,
		NextEpochState:  p.NextEpochState,
	}
}

// Vote is a signed vote on a proposal.
type Vote struct {
	VoteData   VoteData
	Author     Author
	LedgerInfo LedgerInfo
	Signature  []byte
}

func (v Vote) Epoch() uint64 { return v.VoteData.Proposed.Epoch }

func (v Vote) Round() uint64 { return v.VoteData.Proposed.Round }

// Verify checks the vote signature against the validator set.
func (v Vote) Verify(verifier ValidatorVerifier) error {
	if v.LedgerInfo.ConsensusDataHash != v.VoteData.Hash() {
		return ErrQuorumCertDataMismatch
	}
	return verifier.Verify(v.Author, v.LedgerInfo.Hash(), v.Signature)
}

// Timeout is signed when a validator gives up on a round.
type Timeout struct {
	Epoch uint64
	Round uint64
}

func (t Timeout) Hash() HashValue {
	return cryptoHash("Timeout", t)
}
