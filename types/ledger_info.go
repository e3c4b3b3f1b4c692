package types

// LedgerInfo is what validators sign when voting.
type LedgerInfo struct {
	CommitInfo        BlockInfo
	ConsensusDataHash HashValue
}

func (li LedgerInfo) Hash() HashValue {
	return cryptoHash("LedgerInfo", li)
}

func (li LedgerInfo) Epoch() uint64 { return li.CommitInfo.Epoch }

func (li LedgerInfo) Version() uint64 { return li.CommitInfo.Version }

// EndsEpoch reports whether li carries the next epoch's validator set.
func (li LedgerInfo) EndsEpoch() bool { return li.CommitInfo.HasReconfiguration() }

// AuthorSignature is one validator's signature.
type AuthorSignature struct {
	Author    Author
	Signature []byte
}

// LedgerInfoWithSignatures is a LedgerInfo plus the signatures collected on it.
type LedgerInfoWithSignatures struct {
	LedgerInfo LedgerInfo
	Signatures []AuthorSignature `cbor:",omitempty"`
}
