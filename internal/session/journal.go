package session

import (
	"slices"
	"time"

	"coopadventure/internal/game"
)

// EntryKind classifies journal entries.
type EntryKind string

const (
	EntryJoin   EntryKind = "join"
	EntryNode   EntryKind = "node"
	EntryAction EntryKind = "action"
	EntryVote   EntryKind = "vote"
	EntryLeave  EntryKind = "leave"
	EntryEnd    EntryKind = "end"
)

// Entry is one line of the game's journal.
type Entry struct {
	At     time.Time
	Kind   EntryKind
	Actor  string
	NodeID string
	Text   string
}

// PlayerSummary is a player's final state.
type PlayerSummary struct {
	ID        string
	Role      string
	Stats     map[string]int
	Inventory []string
}

// Summary describes a game for export once it has ended.
type Summary struct {
	ID      string
	Title   string
	Reason  string
	Started time.Time
	Entries []Entry
	Players []PlayerSummary
}

// Visited returns the node ids the party entered, in order.
func (s Summary) Visited() []string {
	var out []string
	for _, e := range s.Entries {
		if e.Kind == EntryNode {
			out = append(out, e.NodeID)
		}
	}
	return out
}

// Summary returns the journal and final player states.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:      s.id,
		Title:   s.story.Title,
		Reason:  s.reason,
		Started: s.started,
		Entries: slices.Clone(s.journal),
		Players: slices.Clone(s.final),
	}
}

func summarize(c *game.Character) PlayerSummary {
	cp := snapshot(c)
	return PlayerSummary{ID: cp.ID, Role: cp.Role, Stats: cp.Stats, Inventory: cp.Inventory.Items()}
}
