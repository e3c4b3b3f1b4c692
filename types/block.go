package types

// BlockInfo summarizes a block as referenced by votes and ledger infos.
type BlockInfo struct {
	Epoch           uint64
	Round           uint64
	ID              HashValue
	ExecutedStateID HashValue
	Version         uint64
	TimestampUsecs  uint64
	// NextEpochState is set only on the block that ends an epoch.
	NextEpochState *EpochState `cbor:",omitempty"`
}

// HasReconfiguration reports whether this block ends its epoch.
func (b BlockInfo) HasReconfiguration() bool {
	return b.NextEpochState != nil
}

// BlockData is the signed content of a proposal.
type BlockData struct {
	Epoch          uint64
	Round          uint64
	TimestampUsecs uint64
	QuorumCert     QuorumCert
	Author         Author
	Payload        []byte `cbor:",omitempty"`
}

// Hash is the block id.
func (b BlockData) Hash() HashValue {
	return cryptoHash("BlockData", b)
}

// Block is a proposal together with its proposer's signature.
type Block struct {
	Data      BlockData
	Signature []byte `cbor:",omitempty"`
}

func (b Block) ID() HashValue {
	return b.Data.Hash()
}

// VoteData pairs the proposed block with the parent it extends.
type VoteData struct {
	Proposed BlockInfo
	Parent   BlockInfo
}

func (v VoteData) Hash() HashValue {
	return cryptoHash("VoteData", v)
}

// QuorumCert certifies VoteData with a quorum of signatures on a ledger info.
type QuorumCert struct {
	VoteData         VoteData
	SignedLedgerInfo LedgerInfoWithSignatures
}

func (qc QuorumCert) CertifiedBlock() BlockInfo { return qc.VoteData.Proposed }

func (qc QuorumCert) ParentBlock() BlockInfo { return qc.VoteData.Parent }

// IsGenesis reports whether this QC certifies the round-0 block of an epoch,
// which carries no signatures.
func (qc QuorumCert) IsGenesis() bool {
	return qc.VoteData.Proposed.Round == 0
}

// Verify checks the QC's internal consistency and its quorum signatures.
func (qc QuorumCert) Verify(verifier ValidatorVerifier) error {
	li := qc.SignedLedgerInfo.LedgerInfo
	if li.ConsensusDataHash != qc.VoteData.Hash() {
		return ErrQuorumCertDataMismatch
	}
	if qc.IsGenesis() {
		return nil
	}
	if qc.VoteData.Parent.Round >= qc.VoteData.Proposed.Round {
		return ErrQuorumCertRounds
	}
	return verifier.VerifyQuorum(li.Hash(), qc.SignedLedgerInfo.Signatures)
}

// GenesisQuorumCert certifies the round-0 block of an epoch.
func GenesisQuorumCert(genesis BlockInfo) QuorumCert {
	vd := VoteData{Proposed: genesis, Parent: genesis}
	return QuorumCert{
		VoteData: vd,
		SignedLedgerInfo: LedgerInfoWithSignatures{
			LedgerInfo: LedgerInfo{CommitInfo: genesis, ConsensusDataHash: vd.Hash()},
		},
	}
}
