package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"xdao.co/safetyrules/safetyrules"
	"xdao.co/safetyrules/types"
)

type voteView struct {
	Epoch     uint64 `yaml:"epoch"`
	Round     uint64 `yaml:"round"`
	BlockID   string `yaml:"block_id"`
	Author    string `yaml:"author"`
	Committed string `yaml:"commits,omitempty"`
}

type statusView struct {
	Epoch          uint64    `yaml:"epoch"`
	LastVotedRound uint64    `yaml:"last_voted_round"`
	PreferredRound uint64    `yaml:"preferred_round"`
	OneChainRound  uint64    `yaml:"one_chain_round"`
	LastVote       *voteView `yaml:"last_vote,omitempty"`
	Waypoint       string    `yaml:"waypoint"`
	InValidatorSet bool      `yaml:"in_validator_set"`
}

func newStatusView(cs types.ConsensusState) statusView {
	sd := cs.SafetyData
	v := statusView{
		Epoch:          sd.Epoch,
		LastVotedRound: sd.LastVotedRound,
		PreferredRound: sd.PreferredRound,
		OneChainRound:  sd.OneChainRound,
		Waypoint:       cs.Waypoint.String(),
		InValidatorSet: cs.InValidatorSet,
	}
	if lv := sd.LastVote; lv != nil {
		v.LastVote = &voteView{
			Epoch:   lv.Epoch(),
			Round:   lv.Round(),
			BlockID: lv.VoteData.Proposed.ID.String(),
			Author:  lv.Author.String(),
		}
		if commit := lv.LedgerInfo.CommitInfo; !commit.ID.IsZero() {
			v.LastVote.Committed = commit.ID.String()
		}
	}
	return v
}

func newStatusCmd(out io.Writer) *cobra.Command {
	var addr string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the consensus state of a running server as YAML",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			m, err := safetyrules.NewProcessManager(addr, timeout)
			if err != nil {
				return err
			}
			defer m.Close()
			cs, err := m.Client().ConsensusState()
			if err != nil {
				return fmt.Errorf("consensus state: %w", err)
			}
			b, err := yaml.Marshal(newStatusView(cs))
			if err != nil {
				return err
			}
			_, err = out.Write(b)
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultListen, "Server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}
