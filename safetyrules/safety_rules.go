package safetyrules

import (
	"errors"
	"fmt"
	"log/slog"

	"xdao.co/safetyrules/keys"
	"xdao.co/safetyrules/types"
)

// signer produces consensus signatures for the initialized author.
type signer interface {
	Author() types.Author
	Sign(msg types.HashValue) ([]byte, error)
}

// exportedSigner holds the consensus key in memory.
type exportedSigner struct {
	author types.Author
	key    *keys.PrivateKey
}

func (s exportedSigner) Author() types.Author { return s.author }

func (s exportedSigner) Sign(msg types.HashValue) ([]byte, error) {
	return s.key.Sign(msg[:])
}

// storageSigner asks storage to sign on every call.
type storageSigner struct {
	author  types.Author
	storage *PersistentSafetyStorage
}

func (s storageSigner) Author() types.Author { return s.author }

func (s storageSigner) Sign(msg types.HashValue) ([]byte, error) {
	return s.storage.Sign(msg[:])
}

// SafetyRules is the reference evaluator: the 2-chain voting rules over
// persistent SafetyData.
//
// Every check runs against a copy of the stored SafetyData and nothing is
// written on refusal. A vote is persisted before it is returned. It is not
// safe for concurrent use; topologies serialize access.
type SafetyRules struct {
	storage                     *PersistentSafetyStorage
	verifyVoteProposalSignature bool
	exportConsensusKey          bool

	epochState *types.EpochState
	signer     signer

	log *slog.Logger
}

// NewSafetyRules builds an evaluator over storage. It must be initialized
// with an epoch change proof before it signs anything.
func NewSafetyRules(storage *PersistentSafetyStorage, verifyVoteProposalSignature, exportConsensusKey bool, opts ...Option) *SafetyRules {
	o := buildOptions(opts)
	return &SafetyRules{
		storage:                     storage,
		verifyVoteProposalSignature: verifyVoteProposalSignature,
		exportConsensusKey:          exportConsensusKey,
		log:                         o.logger,
	}
}

func (r *SafetyRules) requireSigner(op string) (signer, error) {
	if r.signer == nil || r.epochState == nil {
		return nil, newError(KindRefusal, op, ErrNotInitialized)
	}
	return r.signer, nil
}

func (r *SafetyRules) refuse(op string, err error) error {
	r.log.Debug("refused", "op", op, "err", err)
	return err
}

func verifyEpoch(op string, epoch uint64, sd types.SafetyData) error {
	if epoch != sd.Epoch {
		return refusal(op, ErrIncorrectEpoch, "got %d, expected %d", epoch, sd.Epoch)
	}
	return nil
}

func (r *SafetyRules) verifyQC(op string, qc types.QuorumCert) error {
	if qc.CertifiedBlock().Epoch != r.epochState.Epoch {
		return refusal(op, ErrInvalidQuorumCert, "certified block epoch %d, current epoch %d", qc.CertifiedBlock().Epoch, r.epochState.Epoch)
	}
	if err := qc.Verify(r.epochState.Verifier); err != nil {
		return refusal(op, ErrInvalidQuorumCert, "%v", err)
	}
	return nil
}

func (r *SafetyRules) Initialize(proof types.EpochChangeProof) error {
	const op = opInitialize
	waypoint, err := r.storage.Waypoint()
	if err != nil {
		return err
	}
	li, err := proof.Verify(waypoint)
	if err != nil {
		return r.refuse(op, refusal(op, ErrInvalidEpochChangeProof, "%v", err))
	}
	next := li.CommitInfo.NextEpochState

	sd, err := r.storage.SafetyData()
	if err != nil {
		return err
	}
	if sd.Epoch > next.Epoch {
		return r.refuse(op, refusal(op, ErrWaypointOutOfDate, "stored epoch %d, proof ends at epoch %d", sd.Epoch, next.Epoch))
	}

	if li.Version() > waypoint.Version {
		w, err := types.NewWaypoint(li)
		if err != nil {
			return newError(KindInternal, op, err)
		}
		if err := r.storage.SetWaypoint(w); err != nil {
			return err
		}
	}
	if sd.Epoch < next.Epoch {
		if err := r.storage.SetSafetyData(types.NewSafetyData(next.Epoch)); err != nil {
			return err
		}
		r.log.Info("moved to new epoch", "from", sd.Epoch, "to", next.Epoch)
	}
	r.epochState = next
	r.signer = nil

	author, err := r.storage.Author()
	if err != nil {
		return err
	}
	info, ok := next.Verifier.Lookup(author)
	if !ok {
		r.log.Warn("validator not in set", "author", author.ShortString(), "epoch", next.Epoch)
		return newError(KindMembership, op, fmt.Errorf("%w: %s in epoch %d", ErrValidatorNotInSet, author.ShortString(), next.Epoch))
	}

	if r.exportConsensusKey {
		key, err := r.storage.ConsensusKey()
		if err != nil {
			return err
		}
		if !key.PublicKey().Equal(info.PublicKey) {
			return newError(KindMembership, op, fmt.Errorf("%w: %s", ErrValidatorKeyNotFound, info.PublicKey))
		}
		r.signer = exportedSigner{author: author, key: key}
	} else {
		pub, err := r.storage.ConsensusPublicKey()
		if err != nil {
			return err
		}
		if !pub.Equal(info.PublicKey) {
			return newError(KindMembership, op, fmt.Errorf("%w: %s", ErrValidatorKeyNotFound, info.PublicKey))
		}
		r.signer = storageSigner{author: author, storage: r.storage}
	}
	r.log.Info("initialized", "author", author.ShortString(), "epoch", next.Epoch)
	return nil
}

func (r *SafetyRules) ConsensusState() (types.ConsensusState, error) {
	sd, err := r.storage.SafetyData()
	if err != nil {
		return types.ConsensusState{}, err
	}
	w, err := r.storage.Waypoint()
	if err != nil {
		return types.ConsensusState{}, err
	}
	return types.ConsensusState{SafetyData: sd, Waypoint: w, InValidatorSet: r.signer != nil}, nil
}

func (r *SafetyRules) ConstructAndSignVote(proposal types.VoteProposal) (types.Vote, error) {
	const op = opConstructAndSignVote
	s, err := r.requireSigner(op)
	if err != nil {
		return types.Vote{}, err
	}
	block := proposal.Block.Data
	sd, err := r.storage.SafetyData()
	if err != nil {
		return types.Vote{}, err
	}
	if err := verifyEpoch(op, block.Epoch, sd); err != nil {
		return types.Vote{}, r.refuse(op, err)
	}

	// Re-voting for the same block is idempotent.
	if last := sd.LastVote; last != nil && last.Round() == block.Round && last.VoteData.Proposed.ID == block.Hash() {
		return *last, nil
	}
	if block.Round <= sd.LastVotedRound {
		return types.Vote{}, r.refuse(op, refusal(op, ErrIncorrectLastVotedRound, "round %d, last voted %d", block.Round, sd.LastVotedRound))
	}
	if r.verifyVoteProposalSignature {
		if err := r.epochState.Verifier.Verify(block.Author, block.Hash(), proposal.Block.Signature); err != nil {
			return types.Vote{}, r.refuse(op, refusal(op, ErrInvalidProposal, "%v", err))
		}
	}
	qc := block.QuorumCert
	if err := r.verifyQC(op, qc); err != nil {
		return types.Vote{}, r.refuse(op, err)
	}
	if block.Round <= qc.CertifiedBlock().Round {
		return types.Vote{}, r.refuse(op, refusal(op, ErrInvalidProposal, "round %d does not extend certified round %d", block.Round, qc.CertifiedBlock().Round))
	}
	if qc.CertifiedBlock().Round < sd.PreferredRound {
		return types.Vote{}, r.refuse(op, refusal(op, ErrIncorrectPreferredRound, "certified round %d, preferred %d", qc.CertifiedBlock().Round, sd.PreferredRound))
	}

	next := sd
	next.PreferredRound = max(sd.PreferredRound, qc.ParentBlock().Round)
	next.OneChainRound = max(sd.OneChainRound, qc.CertifiedBlock().Round)
	next.LastVotedRound = block.Round

	voteData := types.VoteData{Proposed: proposal.ProposedBlockInfo(), Parent: qc.CertifiedBlock()}
	var commit types.BlockInfo
	if block.Round == qc.CertifiedBlock().Round+1 {
		commit = qc.CertifiedBlock()
	}
	li := types.LedgerInfo{CommitInfo: commit, ConsensusDataHash: voteData.Hash()}
	sig, err := s.Sign(li.Hash())
	if err != nil {
		return types.Vote{}, signError(op, err)
	}
	vote := types.Vote{VoteData: voteData, Author: s.Author(), LedgerInfo: li, Signature: sig}
	next.LastVote = &vote
	if err := r.storage.SetSafetyData(next); err != nil {
		return types.Vote{}, err
	}
	return vote, nil
}

func (r *SafetyRules) SignProposal(block types.BlockData) ([]byte, error) {
	const op = opSignProposal
	s, err := r.requireSigner(op)
	if err != nil {
		return nil, err
	}
	if block.Author != s.Author() {
		return nil, r.refuse(op, refusal(op, ErrInvalidProposal, "author %s is not %s", block.Author.ShortString(), s.Author().ShortString()))
	}
	sd, err := r.storage.SafetyData()
	if err != nil {
		return nil, err
	}
	if err := verifyEpoch(op, block.Epoch, sd); err != nil {
		return nil, r.refuse(op, err)
	}
	if block.Round <= sd.LastVotedRound {
		return nil, r.refuse(op, refusal(op, ErrIncorrectLastVotedRound, "round %d, last voted %d", block.Round, sd.LastVotedRound))
	}
	qc := block.QuorumCert
	if err := r.verifyQC(op, qc); err != nil {
		return nil, r.refuse(op, err)
	}
	if qc.CertifiedBlock().Round < sd.PreferredRound {
		return nil, r.refuse(op, refusal(op, ErrIncorrectPreferredRound, "certified round %d, preferred %d", qc.CertifiedBlock().Round, sd.PreferredRound))
	}
	sig, err := s.Sign(block.Hash())
	if err != nil {
		return nil, signError(op, err)
	}
	return sig, nil
}

func (r *SafetyRules) SignTimeout(timeout types.Timeout) ([]byte, error) {
	const op = opSignTimeout
	s, err := r.requireSigner(op)
	if err != nil {
		return nil, err
	}
	sd, err := r.storage.SafetyData()
	if err != nil {
		return nil, err
	}
	if err := verifyEpoch(op, timeout.Epoch, sd); err != nil {
		return nil, r.refuse(op, err)
	}
	if timeout.Round < sd.PreferredRound {
		return nil, r.refuse(op, refusal(op, ErrIncorrectPreferredRound, "round %d, preferred %d", timeout.Round, sd.PreferredRound))
	}
	if timeout.Round < sd.LastVotedRound {
		return nil, r.refuse(op, refusal(op, ErrIncorrectLastVotedRound, "round %d, last voted %d", timeout.Round, sd.LastVotedRound))
	}
	if timeout.Round > sd.LastVotedRound {
		next := sd
		next.LastVotedRound = timeout.Round
		if err := r.storage.SetSafetyData(next); err != nil {
			return nil, err
		}
	}
	sig, err := s.Sign(timeout.Hash())
	if err != nil {
		return nil, signError(op, err)
	}
	return sig, nil
}

func signError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return newError(KindInternal, op, err)
}
