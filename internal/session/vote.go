package session

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"coopadventure/internal/game"
	"coopadventure/internal/protocol"
)

type ballotBox struct {
	choice   *game.Choice
	deadline time.Time
	votes    map[string]bool
	timer    Timer
	gen      uint64
}

func (b *ballotBox) count() (yes, no int) {
	for _, v := range b.votes {
		if v {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

func (s *Session) startVote(c *game.Choice) {
	s.voteGen++
	gen := s.voteGen
	timeout := s.opts.VoteTimeout
	s.vote = &ballotBox{
		choice:   c,
		deadline: s.opts.Now().Add(timeout),
		votes:    map[string]bool{},
		gen:      gen,
	}
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	s.broadcast(protocol.Format(protocol.VoteStart, c.Text, "timeout="+secs), "")
	s.vote.timer = s.opts.AfterFunc(timeout, func() { s.expireVote(gen) })
}

// CastVote records playerID's ballot on the open vote. arg is the raw VOTE
// argument. Once every active player has voted the vote is tallied
// immediately.
func (s *Session) CastVote(ctx context.Context, playerID, arg string) error {
	ctx, span := tracer.Start(ctx, "session.CastVote", trace.WithAttributes(
		attribute.String("player.id", playerID),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(playerID); err != nil {
		return err
	}
	if s.vote == nil {
		return ErrNoVote
	}
	yes, err := protocol.Ballot(arg)
	if err != nil {
		return err
	}
	if _, voted := s.vote.votes[playerID]; voted {
		return ErrAlreadyVoted
	}
	s.vote.votes[playerID] = yes
	p, _ := s.reg.Player(playerID)
	s.broadcast(protocol.Format(protocol.PlayerVoted, fmt.Sprintf("%s (as %s) has voted.", p.ID, p.Role)), "")

	if len(s.vote.votes) == s.reg.ActiveCount() {
		s.vote.timer.Stop()
		s.tally(ctx)
	}
	return nil
}

func (s *Session) expireVote(gen uint64) {
	ctx, span := tracer.Start(context.Background(), "session.expireVote")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != InProgress || s.vote == nil || s.vote.gen != gen {
		return
	}
	log.Printf("session %s: vote timed out", s.id)
	s.broadcast(protocol.Format(protocol.VoteTimeout, "The vote has timed out."), "")
	s.tally(ctx)
}

// tally closes the open vote. It passes only when every active player
// voted and yes outnumbers no.
func (s *Session) tally(ctx context.Context) {
	box := s.vote
	s.vote = nil
	yes, no := box.count()
	active := s.reg.ActiveCount()
	passed := len(box.votes) == active && yes > no

	var msg string
	if len(box.votes) == active {
		msg = fmt.Sprintf("Vote for '%s' %s! (%d yes, %d no)", box.choice.Text, outcome(passed), yes, no)
	} else {
		msg = fmt.Sprintf("Vote for '%s' timed out or not all voted, outcome: failed. (%d yes, %d no, %d did not vote)",
			box.choice.Text, yes, no, active-len(box.votes))
	}
	s.broadcast(protocol.Format(protocol.VoteResult, outcome(passed), msg), "")
	s.record(Entry{Kind: EntryVote, NodeID: s.nodeID, Text: msg})

	if passed {
		s.nodeID = box.choice.TargetNodeID
		// Effects declared on a vote choice belong to the whole party.
		for _, p := range s.reg.Players() {
			if game.Apply(box.choice.Effects, p.Character) {
				s.broadcastUpdate(p)
			}
		}
	} else {
		s.broadcast(protocol.Format(protocol.Info, "The vote failed. The situation remains."), "")
	}
	s.advance()
	s.present(ctx, passed)
}

func outcome(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// VoteDeadline returns when the open vote times out.
func (s *Session) VoteDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vote == nil {
		return time.Time{}, false
	}
	return s.vote.deadline, true
}
