// Package session runs one multiplayer game: role selection, turn order,
// story progression and group votes. Every state transition happens
// under a single lock, and the lines each transition produces are queued
// to the players' outlets before the lock is released, so all
// connections observe the same order of events.
package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"coopadventure/internal/game"
	"coopadventure/internal/protocol"
)

// DefaultVoteTimeout is how long a group vote stays open.
const DefaultVoteTimeout = 30 * time.Second

var tracer = otel.Tracer("coopadventure/internal/session")

// Phase is the lifecycle stage of a session.
type Phase int

const (
	AwaitingPlayers Phase = iota
	InProgress
	Ended
)

func (p Phase) String() string {
	switch p {
	case AwaitingPlayers:
		return "awaiting_players"
	case InProgress:
		return "in_progress"
	case Ended:
		return "ended"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Timer is the part of *time.Timer the session needs.
type Timer interface {
	Stop() bool
}

// Options tunes a session.
type Options struct {
	VoteTimeout time.Duration
	// AfterFunc schedules the vote timeout. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is a single game on a single story.
type Session struct {
	id     string
	story  *game.Story
	engine *game.Engine
	opts   Options

	mu      sync.Mutex
	reg     *Registry
	phase   Phase
	nodeID  string
	order   []string
	turn    int
	vote    *ballotBox
	voteGen uint64

	started time.Time
	journal []Entry
	final   []PlayerSummary
	reason  string
	done    chan struct{}
}

// New returns a session waiting for players.
func New(story *game.Story, opts Options) *Session {
	if opts.VoteTimeout <= 0 {
		opts.VoteTimeout = DefaultVoteTimeout
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		id:     uuid.NewString(),
		story:  story,
		engine: &game.Engine{Story: story},
		opts:   opts,
		reg:    NewRegistry(story.RoleOrder),
		done:   make(chan struct{}),
	}
}

// ID returns the unique id of this game.
func (s *Session) ID() string { return s.id }

// Done is closed when the game has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Phase returns the current lifecycle stage.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// NodeID returns the current story node.
func (s *Session) NodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodeID
}

// CurrentPlayer returns the id of the player whose turn it is, or "" when
// no game is running.
func (s *Session) CurrentPlayer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != InProgress {
		return ""
	}
	return s.order[s.turn]
}

// VoteInProgress reports whether a group vote is open.
func (s *Session) VoteInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vote != nil
}

// Available returns the roles that can still be claimed.
func (s *Session) Available() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Available()
}

// Character returns a copy of an active player's stats and inventory.
func (s *Session) Character(id string) (game.Character, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.reg.Player(id)
	if !ok {
		return game.Character{}, false
	}
	return snapshot(p.Character), true
}

// Admit registers a new connection, greets it and lists the open roles.
// It returns the temporary id the connection is known by until it claims
// a role.
func (s *Session) Admit(ctx context.Context, out Outlet) (string, error) {
	_, span := tracer.Start(ctx, "session.Admit")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Ended {
		return "", ErrGameOver
	}
	id, err := s.reg.Admit(out, s.story.MaxPlayers)
	if err != nil {
		span.SetAttributes(attribute.Bool("session.full", true))
		return "", err
	}
	span.SetAttributes(attribute.String("player.temp_id", id))
	s.deliver(id, out, protocol.Format(protocol.Welcome, id, "Welcome! Choose your role."))
	s.deliver(id, out, protocol.Format(protocol.RolesAvailable, strings.Join(s.reg.Available(), ",")))
	log.Printf("session %s: admitted %s", s.id, id)
	return id, nil
}

// ClaimRole gives the pending connection tempID the role. It returns the
// player id, which is the role name. The game starts as soon as the last
// seat is taken.
func (s *Session) ClaimRole(ctx context.Context, tempID, role string) (string, error) {
	ctx, span := tracer.Start(ctx, "session.ClaimRole", trace.WithAttributes(
		attribute.String("player.temp_id", tempID),
		attribute.String("player.role", role),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Ended {
		return "", ErrGameOver
	}
	p, err := s.reg.Claim(tempID, role, s.story)
	if err != nil {
		return "", err
	}
	log.Printf("session %s: %s claimed role %s", s.id, tempID, p.ID)
	s.sendTo(p.ID, protocol.Format(protocol.RoleConfirmed, p.ID, p.StatsJSON(), p.InventoryJSON()))
	s.broadcast(protocol.Format(protocol.PlayerJoined, p.ID+" has joined the game."), p.ID)
	roles := protocol.Format(protocol.RolesAvailable, strings.Join(s.reg.Available(), ","))
	for _, out := range s.reg.Pending() {
		s.deliver("pending", out, roles)
	}
	s.record(Entry{Kind: EntryJoin, Actor: p.ID, Text: p.ID + " joined"})

	if s.phase == AwaitingPlayers && s.reg.ActiveCount() == s.story.MaxPlayers {
		s.start(ctx)
	}
	return p.ID, nil
}

// Choose applies the active player's numbered choice. arg is the raw
// CHOICE argument.
func (s *Session) Choose(ctx context.Context, playerID, arg string) error {
	ctx, span := tracer.Start(ctx, "session.Choose", trace.WithAttributes(
		attribute.String("player.id", playerID),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive(playerID); err != nil {
		return err
	}
	if s.vote != nil {
		return ErrVoteInProgress
	}
	if s.order[s.turn] != playerID {
		return ErrNotYourTurn
	}
	n, err := protocol.ChoiceNumber(arg)
	if err != nil {
		return err
	}
	p, _ := s.reg.Player(playerID)
	from := s.nodeID
	res, err := s.engine.ApplyChoice(from, p.Character, n)
	switch {
	case err == nil:
	case isStoryFault(err):
		s.end(fmt.Sprintf("Error: Node '%s' not found.", from))
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrInvalidChoice, err)
	}
	span.SetAttributes(attribute.String("node.from", from), attribute.String("node.to", res.Next))

	text := game.Render(res.Choice.Text, p.Role)
	s.broadcast(protocol.Format(protocol.PlayerAction, fmt.Sprintf("%s (as %s) chose: '%s'", p.ID, p.Role, text)), "")
	if res.ChooserChanged {
		s.broadcastUpdate(p)
	}
	s.record(Entry{Kind: EntryAction, Actor: p.ID, NodeID: from, Text: text})

	s.nodeID = res.Next
	s.advance()
	s.present(ctx, true)
	return nil
}

// Disconnect releases id's slot, whether it was pending or active. When
// a running game drops below its player count, the game ends. Calling
// Disconnect for an unknown id does nothing.
func (s *Session) Disconnect(ctx context.Context, id string) {
	_, span := tracer.Start(ctx, "session.Disconnect", trace.WithAttributes(
		attribute.String("player.id", id),
	))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	out, wasPending, ok := s.reg.Remove(id)
	if !ok {
		return
	}
	_ = out.Close()
	if wasPending {
		log.Printf("session %s: pending connection %s left", s.id, id)
		return
	}
	log.Printf("session %s: player %s disconnected", s.id, id)
	if s.phase == Ended {
		return
	}
	s.broadcast(protocol.Format(protocol.PlayerLeft, id+" has left the game."), "")
	s.record(Entry{Kind: EntryLeave, Actor: id, Text: id + " left"})
	if s.phase == InProgress && s.reg.ActiveCount() < s.story.MaxPlayers {
		s.end(fmt.Sprintf("Player %s disconnected. Not enough players to continue.", id))
	}
}

// End stops the game with reason. It is a no-op on an ended session.
func (s *Session) End(ctx context.Context, reason string) {
	_, span := tracer.Start(ctx, "session.End")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end(reason)
}

func (s *Session) checkActive(playerID string) error {
	switch s.phase {
	case Ended:
		return ErrGameOver
	case AwaitingPlayers:
		if _, ok := s.reg.Player(playerID); !ok {
			return ErrRoleRequired
		}
		return ErrGameNotActive
	}
	if _, ok := s.reg.Player(playerID); !ok {
		return ErrRoleRequired
	}
	return nil
}

func (s *Session) start(ctx context.Context) {
	s.phase = InProgress
	s.order = s.reg.Order()
	s.turn = 0
	s.nodeID = s.story.StartNodeID
	s.started = s.opts.Now()
	log.Printf("session %s: game started with %v at %s", s.id, s.order, s.nodeID)

	s.broadcast(protocol.Format(protocol.GameStart, "All players have chosen roles. The adventure begins!"), "")
	s.announceTurn()
	s.present(ctx, true)
}

func (s *Session) end(reason string) {
	if s.phase == Ended {
		return
	}
	s.phase = Ended
	s.reason = reason
	if s.vote != nil {
		s.vote.timer.Stop()
		s.vote = nil
	}
	for _, p := range s.reg.Players() {
		s.final = append(s.final, summarize(p.Character))
	}
	s.record(Entry{Kind: EntryEnd, NodeID: s.nodeID, Text: reason})

	line := protocol.Format(protocol.GameEnd, reason)
	s.broadcast(line, "")
	for _, out := range s.reg.Pending() {
		s.deliver("pending", out, line)
		_ = out.Close()
	}
	for _, p := range s.reg.Players() {
		_ = p.out.Close()
	}
	close(s.done)
	log.Printf("session %s: game ended: %s", s.id, reason)
}

func (s *Session) record(e Entry) {
	e.At = s.opts.Now()
	s.journal = append(s.journal, e)
}

func snapshot(c *game.Character) game.Character {
	cp := game.Character{
		ID:        c.ID,
		Role:      c.Role,
		Stats:     make(map[string]int, len(c.Stats)),
		Inventory: game.NewInventory(c.Inventory.Items()...),
	}
	for k, v := range c.Stats {
		cp.Stats[k] = v
	}
	return cp
}
