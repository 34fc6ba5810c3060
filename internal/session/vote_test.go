package session

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"coopadventure/internal/protocol"
)

const councilStory = `{
  "start_node_id": "council",
  "max_players": 3,
  "player_character_templates": {"Alpha": {}, "Bravo": {}, "Charlie": {}},
  "nodes": {
    "council": {
      "text": "The crew gathers.",
      "choices": [
        {"text": "Blow the door", "target_node_id": "open", "requires_vote": true,
         "effects": [{"type": "inventory_change", "item": "medal", "action": "add"}]}
      ]
    },
    "open": {
      "text": "The door is open.",
      "choices": [{"text": "Rest", "target_node_id": "open"}]
    }
  }
}`

func TestVote_StartsOnVoteNode(t *testing.T) {
	s, _ := newTestSession(t, councilStory)
	outs := join(t, s, "Alpha", "Bravo", "Charlie")

	for _, role := range []string{"Alpha", "Bravo", "Charlie"} {
		got := outs[role].take()
		if !hasLine(got, "VOTE_START:Blow the door:timeout=30") {
			t.Errorf("Expected %s to see VOTE_START, got %v", role, got)
		}
		if hasPrefix(got, protocol.Choices) {
			t.Errorf("Expected no choice list during a vote, got %v", got)
		}
	}
	if !s.VoteInProgress() {
		t.Error("Expected a vote in progress")
	}
	if _, ok := s.VoteDeadline(); !ok {
		t.Error("Expected a vote deadline")
	}
	if err := s.Choose(context.Background(), "Alpha", "1"); !errors.Is(err, ErrVoteInProgress) {
		t.Errorf("Expected ErrVoteInProgress, got %v", err)
	}
}

func TestVote_TimeoutWithMissingBallotFails(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestSession(t, councilStory)
	outs := join(t, s, "Alpha", "Bravo", "Charlie")
	outs["Charlie"].take()

	if err := s.CastVote(ctx, "Alpha", "yes"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := s.CastVote(ctx, "Bravo", "YES"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	timer := clock.last(t)
	if timer.stopped {
		t.Fatal("Expected the timer to keep running with a ballot missing")
	}
	timer.fire()

	want := []string{
		"PLAYER_VOTED:Alpha (as Alpha) has voted.",
		"PLAYER_VOTED:Bravo (as Bravo) has voted.",
		"VOTE_TIMEOUT:The vote has timed out.",
		"VOTE_RESULT:failed:Vote for 'Blow the door' timed out or not all voted, outcome: failed. (2 yes, 0 no, 1 did not vote)",
		"INFO:The vote failed. The situation remains.",
		"TURN:Bravo",
		"NODE_TEXT:The crew gathers.",
		"VOTE_START:Blow the door:timeout=30",
	}
	if got := outs["Charlie"].take(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected\n%v\ngot\n%v", want, got)
	}
	if s.NodeID() != "council" {
		t.Errorf("Expected to stay at council, got %s", s.NodeID())
	}
	alpha, _ := s.Character("Alpha")
	if alpha.Inventory.Has("medal") {
		t.Error("Expected no effects from a failed vote")
	}
}

func TestVote_UnanimousPassesImmediately(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestSession(t, councilStory)
	outs := join(t, s, "Alpha", "Bravo", "Charlie")
	outs["Bravo"].take()

	for _, role := range []string{"Alpha", "Bravo", "Charlie"} {
		if err := s.CastVote(ctx, role, "yes"); err != nil {
			t.Fatalf("CastVote %s: %v", role, err)
		}
	}
	timer := clock.last(t)
	if !timer.stopped {
		t.Error("Expected the timer to be stopped once everyone voted")
	}

	got := outs["Bravo"].take()
	if !hasLine(got, "VOTE_RESULT:passed:Vote for 'Blow the door' passed! (3 yes, 0 no)") {
		t.Errorf("Expected vote to pass, got %v", got)
	}
	if hasPrefix(got, protocol.VoteTimeout) {
		t.Errorf("Expected no timeout notice, got %v", got)
	}
	if !hasLine(got, "ACTIVE_PLAYER_CHOICES:1. Rest") {
		t.Errorf("Expected Bravo to act next, got %v", got)
	}
	if s.NodeID() != "open" || s.CurrentPlayer() != "Bravo" {
		t.Errorf("Expected open/Bravo, got %s/%s", s.NodeID(), s.CurrentPlayer())
	}
	for _, role := range []string{"Alpha", "Bravo", "Charlie"} {
		ch, _ := s.Character(role)
		if !ch.Inventory.Has("medal") {
			t.Errorf("Expected %s to receive the vote's effect", role)
		}
	}

	// A timeout that races the final ballot must not touch the next turn.
	timer.fire()
	if got := outs["Bravo"].take(); len(got) != 0 {
		t.Errorf("Expected stale timeout to do nothing, got %v", got)
	}
}

func TestVote_MajorityNoFails(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, councilStory)
	outs := join(t, s, "Alpha", "Bravo", "Charlie")
	outs["Alpha"].take()

	s.CastVote(ctx, "Alpha", "yes")
	s.CastVote(ctx, "Bravo", "no")
	s.CastVote(ctx, "Charlie", "no")

	got := outs["Alpha"].take()
	if !hasLine(got, "VOTE_RESULT:failed:Vote for 'Blow the door' failed! (1 yes, 2 no)") {
		t.Errorf("Expected vote to fail, got %v", got)
	}
	if s.NodeID() != "council" {
		t.Errorf("Expected to stay at council, got %s", s.NodeID())
	}
	if !s.VoteInProgress() {
		t.Error("Expected the vote to be offered again")
	}
}

func TestVote_Rejections(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, councilStory)
	join(t, s, "Alpha", "Bravo", "Charlie")

	if err := s.CastVote(ctx, "Alpha", "maybe"); !errors.Is(err, protocol.ErrBadBallot) {
		t.Errorf("Expected ErrBadBallot, got %v", err)
	}
	if err := s.CastVote(ctx, "Alpha", "no"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := s.CastVote(ctx, "Alpha", "yes"); !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("Expected ErrAlreadyVoted, got %v", err)
	}
	if err := s.CastVote(ctx, "Nobody", "yes"); !errors.Is(err, ErrRoleRequired) {
		t.Errorf("Expected ErrRoleRequired, got %v", err)
	}
	if !s.VoteInProgress() {
		t.Error("Expected the vote to stay open")
	}
}

func TestVote_EndStopsTimer(t *testing.T) {
	s, clock := newTestSession(t, councilStory)
	join(t, s, "Alpha", "Bravo", "Charlie")
	timer := clock.last(t)

	s.End(context.Background(), "Server shutting down.")
	if !timer.stopped {
		t.Error("Expected End to stop the vote timer")
	}
	timer.fire()
	if s.VoteInProgress() {
		t.Error("Expected no vote after the game ended")
	}
}

func TestVote_RealTimerExpires(t *testing.T) {
	s := New(loadStory(t, councilStory), Options{VoteTimeout: 20 * time.Millisecond})
	outs := join(t, s, "Alpha", "Bravo", "Charlie")
	outs["Alpha"].take()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		gen := s.voteGen
		s.mu.Unlock()
		if gen >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.End(context.Background(), "done")
	if !hasLine(outs["Alpha"].take(), "VOTE_TIMEOUT:The vote has timed out.") {
		t.Error("Expected the vote to time out on a real timer")
	}
}
