package types

// SafetyData is the persisted voting state that prevents equivocation.
type SafetyData struct {
	Epoch          uint64
	LastVotedRound uint64
	// PreferredRound is the highest 2-chain head round seen.
	PreferredRound uint64
	// OneChainRound is the highest 1-chain head round seen.
	OneChainRound uint64
	LastVote      *Vote `cbor:",omitempty"`
}

// NewSafetyData returns fresh state for an epoch.
func NewSafetyData(epoch uint64) SafetyData {
	return SafetyData{Epoch: epoch}
}

// ConsensusState is the externally visible view of the evaluator.
type ConsensusState struct {
	SafetyData     SafetyData
	Waypoint       Waypoint
	InValidatorSet bool
}
