package session

import (
	"errors"
	"fmt"
	"strings"

	"coopadventure/internal/protocol"
)

var (
	// ErrServerFull is returned when admitting a connection would exceed
	// the story's player count.
	ErrServerFull = errors.New("session: server full")
	// ErrRoleUnavailable is returned when a role is unknown or taken.
	ErrRoleUnavailable = errors.New("session: role unavailable")
	// ErrAlreadyClaimed is returned when a connection that already has a
	// role asks for another one.
	ErrAlreadyClaimed = errors.New("session: role already claimed")
	// ErrRoleRequired is returned for game commands from a connection
	// that has not claimed a role yet.
	ErrRoleRequired = errors.New("session: role required")
	// ErrGameNotActive is returned for game commands outside a running game.
	ErrGameNotActive = errors.New("session: game not active")
	// ErrNotYourTurn is returned when a player acts out of turn.
	ErrNotYourTurn = errors.New("session: not your turn")
	// ErrInvalidChoice is returned for a choice number outside the legal list.
	ErrInvalidChoice = errors.New("session: invalid choice")
	// ErrVoteInProgress is returned for CHOICE commands while a vote runs.
	ErrVoteInProgress = errors.New("session: vote in progress")
	// ErrNoVote is returned for VOTE commands when no vote runs.
	ErrNoVote = errors.New("session: no vote in progress")
	// ErrAlreadyVoted is returned when a player votes twice.
	ErrAlreadyVoted = errors.New("session: already voted")
	// ErrGameOver is returned by any operation on an ended session.
	ErrGameOver = errors.New("session: game over")
)

// RoleError reports a failed role claim along with the roles that are
// still available.
type RoleError struct {
	Role      string
	Available []string
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("session: role %q unavailable", e.Role)
}

func (e *RoleError) Unwrap() error { return ErrRoleUnavailable }

// Reply renders the protocol line answering a failed client command.
func Reply(err error) string {
	var re *RoleError
	switch {
	case errors.As(err, &re):
		return protocol.Format(protocol.Error, fmt.Sprintf("Role '%s' is not available or invalid. Available: %s",
			re.Role, strings.Join(re.Available, ",")))
	case errors.Is(err, ErrServerFull):
		return protocol.Format(protocol.ServerFull, "Server is full.")
	case errors.Is(err, ErrAlreadyVoted):
		return protocol.Format(protocol.Info, "You have already voted.")
	case errors.Is(err, ErrGameNotActive):
		return protocol.Format(protocol.Info, "The game has not started yet. Waiting for players.")
	case errors.Is(err, ErrAlreadyClaimed):
		return protocol.Format(protocol.Error, "You already have a role.")
	case errors.Is(err, ErrRoleRequired):
		return protocol.Format(protocol.Error, "Choose a role first. Send ROLE:<name>.")
	case errors.Is(err, ErrNotYourTurn):
		return protocol.Format(protocol.Error, "It is not your turn.")
	case errors.Is(err, ErrInvalidChoice):
		return protocol.Format(protocol.Error, "Invalid choice index.")
	case errors.Is(err, protocol.ErrBadChoice):
		return protocol.Format(protocol.Error, "Invalid choice format. Send CHOICE:number.")
	case errors.Is(err, ErrVoteInProgress):
		return protocol.Format(protocol.Error, "A vote is in progress. Send VOTE:yes or VOTE:no.")
	case errors.Is(err, ErrNoVote):
		return protocol.Format(protocol.Error, "No vote is in progress.")
	case errors.Is(err, protocol.ErrBadBallot):
		return protocol.Format(protocol.Error, "Invalid vote. Send VOTE:yes or VOTE:no.")
	case errors.Is(err, ErrGameOver):
		return protocol.Format(protocol.Error, "The game is over.")
	case errors.Is(err, protocol.ErrMalformed), errors.Is(err, protocol.ErrUnknownCommand):
		return protocol.Format(protocol.Error, "Unrecognized message. Send ROLE:<name>, CHOICE:<number> or VOTE:yes|no.")
	}
	return protocol.Format(protocol.Error, "Request failed.")
}
