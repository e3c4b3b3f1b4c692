package safetyrules

import "xdao.co/safetyrules/types"

// TSafetyRules is the client contract shared by the evaluator and every
// topology client.
type TSafetyRules interface {
	// Initialize moves the evaluator to the epoch proven by proof.
	Initialize(proof types.EpochChangeProof) error
	ConsensusState() (types.ConsensusState, error)
	// ConstructAndSignVote votes for a proposal if doing so is safe.
	ConstructAndSignVote(proposal types.VoteProposal) (types.Vote, error)
	// SignProposal signs a block this validator proposes.
	SignProposal(block types.BlockData) ([]byte, error)
	// SignTimeout signs a timeout for a round this validator gives up on.
	SignTimeout(timeout types.Timeout) ([]byte, error)
}

const (
	opInitialize           = "initialize"
	opConsensusState       = "consensus_state"
	opConstructAndSignVote = "construct_and_sign_vote"
	opSignProposal         = "sign_proposal"
	opSignTimeout          = "sign_timeout"
)
