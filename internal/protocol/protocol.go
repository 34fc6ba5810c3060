// Package protocol defines the newline-delimited text protocol spoken
// between the session server and its clients. Every message is a single
// line of the form TAG:field[:field...].
package protocol

import (
	"errors"
	"strconv"
	"strings"
)

// Server to client tags.
const (
	Welcome        = "WELCOME"
	RolesAvailable = "ROLES_AVAILABLE"
	RoleConfirmed  = "ROLE_CONFIRMED"
	Error          = "ERROR"
	ServerFull     = "SERVER_FULL"
	PlayerJoined   = "PLAYER_JOINED"
	PlayerLeft     = "PLAYER_LEFT"
	GameStart      = "GAME_START"
	Turn           = "TURN"
	YourTurn       = "YOUR_TURN"
	NodeText       = "NODE_TEXT"
	Choices        = "ACTIVE_PLAYER_CHOICES"
	VoteStart      = "VOTE_START"
	PlayerVoted    = "PLAYER_VOTED"
	VoteTimeout    = "VOTE_TIMEOUT"
	VoteResult     = "VOTE_RESULT"
	PlayerAction   = "PLAYER_ACTION"
	PlayerUpdate   = "PLAYER_UPDATE"
	Info           = "INFO"
	GameEnd        = "GAME_END"
)

// Client to server tags.
const (
	CmdRole   = "ROLE"
	CmdChoice = "CHOICE"
	CmdVote   = "VOTE"
)

var (
	// ErrMalformed is returned for a client line without a TAG: prefix.
	ErrMalformed = errors.New("protocol: malformed line")
	// ErrUnknownCommand is returned for a tag the server does not accept.
	ErrUnknownCommand = errors.New("protocol: unknown command")
	// ErrBadChoice is returned when a CHOICE argument is not a number.
	ErrBadChoice = errors.New("protocol: choice must be a number")
	// ErrBadBallot is returned when a VOTE argument is not yes or no.
	ErrBadBallot = errors.New("protocol: vote must be yes or no")
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Format joins a tag and its fields into one line without the trailing
// newline. Embedded line breaks in fields are replaced by spaces.
func Format(tag string, fields ...string) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, f := range fields {
		b.WriteByte(':')
		b.WriteString(lineBreaks.Replace(f))
	}
	return b.String()
}

// Command is a parsed client line.
type Command struct {
	Tag string
	Arg string
}

// ParseCommand splits a client line into its tag and argument.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	tag, arg, ok := strings.Cut(line, ":")
	if !ok || tag == "" {
		return Command{}, ErrMalformed
	}
	switch tag {
	case CmdRole, CmdChoice, CmdVote:
	default:
		return Command{}, ErrUnknownCommand
	}
	return Command{Tag: tag, Arg: strings.TrimSpace(arg)}, nil
}

// ChoiceNumber parses the 1-based argument of a CHOICE command.
func ChoiceNumber(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, ErrBadChoice
	}
	return n, nil
}

// Ballot parses the argument of a VOTE command. It returns true for yes.
func Ballot(arg string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, ErrBadBallot
}

// ChoiceList renders numbered choice texts for ACTIVE_PLAYER_CHOICES.
func ChoiceList(texts []string) string {
	parts := make([]string, len(texts))
	for i, t := range texts {
		parts[i] = strconv.Itoa(i+1) + ". " + strings.ReplaceAll(t, "|", "/")
	}
	return strings.Join(parts, "|")
}
