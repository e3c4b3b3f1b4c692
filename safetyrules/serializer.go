package safetyrules

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"xdao.co/safetyrules/types"
)

// DefaultSessionLimit bounds how many clients the serializer remembers for
// duplicate detection. The oldest client is forgotten first.
const DefaultSessionLimit = 1024

type session struct {
	seq      uint64
	response []byte
}

// SerializerService decodes requests, runs them on the evaluator and
// encodes the replies. It is not safe for concurrent use; every topology
// that owns one serializes calls to Handle.
type SerializerService struct {
	rules TSafetyRules

	sessions map[uuid.UUID]session
	order    []uuid.UUID
	limit    int
}

func NewSerializerService(rules TSafetyRules) *SerializerService {
	return &SerializerService{
		rules:    rules,
		sessions: make(map[uuid.UUID]session),
		limit:    DefaultSessionLimit,
	}
}

// Handle processes one encoded request. Evaluator failures are encoded into
// the reply; the returned error is only set when no reply can be encoded.
func (s *SerializerService) Handle(request []byte) ([]byte, error) {
	in, err := decodeInput(request)
	if err != nil {
		return encodeOutput(SafetyRulesOutput{Err: toWireError(err)})
	}

	if in.ClientID != uuid.Nil {
		if prev, ok := s.sessions[in.ClientID]; ok {
			switch {
			case in.Seq == prev.seq:
				return prev.response, nil
			case in.Seq < prev.seq:
				err := newError(KindTransport, in.Method, fmt.Errorf("%w: seq %d, last %d", ErrStaleRequest, in.Seq, prev.seq))
				return encodeOutput(SafetyRulesOutput{Err: toWireError(err)})
			}
		}
	}

	resp, err := encodeOutput(s.dispatch(in))
	if err != nil {
		return nil, err
	}
	if in.ClientID != uuid.Nil {
		s.remember(in.ClientID, session{seq: in.Seq, response: resp})
	}
	return resp, nil
}

func (s *SerializerService) dispatch(in SafetyRulesInput) SafetyRulesOutput {
	var out SafetyRulesOutput
	var err error
	switch in.Method {
	case opInitialize:
		if in.Proof == nil {
			err = missingArgument(in.Method)
			break
		}
		err = s.rules.Initialize(*in.Proof)
	case opConsensusState:
		var cs types.ConsensusState
		cs, err = s.rules.ConsensusState()
		if err == nil {
			out.ConsensusState = &cs
		}
	case opConstructAndSignVote:
		if in.VoteProposal == nil {
			err = missingArgument(in.Method)
			break
		}
		var v types.Vote
		v, err = s.rules.ConstructAndSignVote(*in.VoteProposal)
		if err == nil {
			out.Vote = &v
		}
	case opSignProposal:
		if in.BlockData == nil {
			err = missingArgument(in.Method)
			break
		}
		out.Signature, err = s.rules.SignProposal(*in.BlockData)
	case opSignTimeout:
		if in.Timeout == nil {
			err = missingArgument(in.Method)
			break
		}
		out.Signature, err = s.rules.SignTimeout(*in.Timeout)
	default:
		err = newError(KindCodec, in.Method, fmt.Errorf("%w: %q", ErrUnknownMethod, in.Method))
	}
	if err != nil {
		return SafetyRulesOutput{Err: toWireError(err)}
	}
	return out
}

func missingArgument(method string) error {
	return newError(KindCodec, method, fmt.Errorf("%w: missing argument", ErrMalformedMessage))
}

func (s *SerializerService) remember(id uuid.UUID, sess session) {
	if _, ok := s.sessions[id]; !ok {
		s.order = append(s.order, id)
		for len(s.order) > s.limit {
			delete(s.sessions, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.sessions[id] = sess
}

// transport carries one encoded request to a SerializerService and returns
// the encoded reply.
type transport func(request []byte) ([]byte, error)

type pendingRequest struct {
	seq  uint64
	body []byte
}

// SerializerClient implements TSafetyRules by encoding every call and
// handing it to a transport. Calls from one client are serialized.
//
// When a call fails in transport, the client remembers it. If the next call
// is the identical request it is resent with the same sequence number, so
// the service answers with the original outcome instead of running the
// operation twice.
type SerializerClient struct {
	transport transport
	id        uuid.UUID

	mu      sync.Mutex
	seq     uint64
	pending *pendingRequest
}

func newSerializerClient(t transport) *SerializerClient {
	return &SerializerClient{transport: t, id: uuid.New()}
}

// ID identifies this client to the service.
func (c *SerializerClient) ID() uuid.UUID { return c.id }

func (c *SerializerClient) request(in SafetyRulesInput) (SafetyRulesOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body, err := encodeInput(in)
	if err != nil {
		return SafetyRulesOutput{}, err
	}
	var seq uint64
	if c.pending != nil && bytes.Equal(c.pending.body, body) {
		seq = c.pending.seq
	} else {
		c.seq++
		seq = c.seq
	}
	c.pending = nil

	in.ClientID = c.id
	in.Seq = seq
	req, err := encodeInput(in)
	if err != nil {
		return SafetyRulesOutput{}, err
	}

	resp, err := c.transport(req)
	if err != nil {
		if IsKind(err, KindTransport) {
			c.pending = &pendingRequest{seq: seq, body: body}
		}
		return SafetyRulesOutput{}, err
	}
	out, err := decodeOutput(in.Method, resp)
	if err != nil {
		return SafetyRulesOutput{}, err
	}
	if out.Err != nil {
		return SafetyRulesOutput{}, out.Err.toError()
	}
	return out, nil
}

func (c *SerializerClient) Initialize(proof types.EpochChangeProof) error {
	_, err := c.request(SafetyRulesInput{Method: opInitialize, Proof: &proof})
	return err
}

func (c *SerializerClient) ConsensusState() (types.ConsensusState, error) {
	out, err := c.request(SafetyRulesInput{Method: opConsensusState})
	if err != nil {
		return types.ConsensusState{}, err
	}
	if out.ConsensusState == nil {
		return types.ConsensusState{}, newError(KindCodec, opConsensusState, ErrUnexpectedResponse)
	}
	return *out.ConsensusState, nil
}

func (c *SerializerClient) ConstructAndSignVote(proposal types.VoteProposal) (types.Vote, error) {
	out, err := c.request(SafetyRulesInput{Method: opConstructAndSignVote, VoteProposal: &proposal})
	if err != nil {
		return types.Vote{}, err
	}
	if out.Vote == nil {
		return types.Vote{}, newError(KindCodec, opConstructAndSignVote, ErrUnexpectedResponse)
	}
	return *out.Vote, nil
}

func (c *SerializerClient) SignProposal(block types.BlockData) ([]byte, error) {
	out, err := c.request(SafetyRulesInput{Method: opSignProposal, BlockData: &block})
	if err != nil {
		return nil, err
	}
	if len(out.Signature) == 0 {
		return nil, newError(KindCodec, opSignProposal, ErrUnexpectedResponse)
	}
	return out.Signature, nil
}

func (c *SerializerClient) SignTimeout(timeout types.Timeout) ([]byte, error) {
	out, err := c.request(SafetyRulesInput{Method: opSignTimeout, Timeout: &timeout})
	if err != nil {
		return nil, err
	}
	if len(out.Signature) == 0 {
		return nil, newError(KindCodec, opSignTimeout, ErrUnexpectedResponse)
	}
	return out.Signature, nil
}
