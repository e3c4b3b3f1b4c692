package safetyrules

import (
	"fmt"

	"github.com/google/uuid"

	"xdao.co/safetyrules/types"
)

// SafetyRulesInput is one encoded client request.
//
// ClientID and Seq identify the request for duplicate detection: Seq grows
// by one per distinct request from a client and repeats when the client
// resends a request whose outcome it never learned.
type SafetyRulesInput struct {
	ClientID uuid.UUID
	Seq      uint64
	Method   string

	Proof        *types.EpochChangeProof `cbor:",omitempty"`
	VoteProposal *types.VoteProposal     `cbor:",omitempty"`
	BlockData    *types.BlockData        `cbor:",omitempty"`
	Timeout      *types.Timeout          `cbor:",omitempty"`
}

// SafetyRulesOutput is the encoded reply to a SafetyRulesInput.
type SafetyRulesOutput struct {
	Err            *WireError            `cbor:",omitempty"`
	ConsensusState *types.ConsensusState `cbor:",omitempty"`
	Vote           *types.Vote           `cbor:",omitempty"`
	Signature      []byte                `cbor:",omitempty"`
}

func encodeInput(in SafetyRulesInput) ([]byte, error) {
	b, err := types.Marshal(in)
	if err != nil {
		return nil, newError(KindCodec, in.Method, fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}
	return b, nil
}

func decodeInput(b []byte) (SafetyRulesInput, error) {
	var in SafetyRulesInput
	if err := types.Unmarshal(b, &in); err != nil {
		return SafetyRulesInput{}, newError(KindCodec, "decode request", fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}
	return in, nil
}

func encodeOutput(out SafetyRulesOutput) ([]byte, error) {
	b, err := types.Marshal(out)
	if err != nil {
		return nil, newError(KindCodec, "encode response", fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}
	return b, nil
}

func decodeOutput(op string, b []byte) (SafetyRulesOutput, error) {
	var out SafetyRulesOutput
	if err := types.Unmarshal(b, &out); err != nil {
		return SafetyRulesOutput{}, newError(KindCodec, op, fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}
	return out, nil
}
