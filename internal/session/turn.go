package session

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"coopadventure/internal/game"
	"coopadventure/internal/protocol"
)

func isStoryFault(err error) bool {
	return errors.Is(err, game.ErrUnknownNode) || errors.Is(err, game.ErrUnknownRole)
}

func (s *Session) current() *Player {
	p, _ := s.reg.Player(s.order[s.turn])
	return p
}

func (s *Session) advance() {
	s.turn = (s.turn + 1) % len(s.order)
	s.announceTurn()
}

func (s *Session) announceTurn() {
	id := s.order[s.turn]
	s.broadcast(protocol.Format(protocol.Turn, id), "")
	s.sendTo(id, protocol.Format(protocol.YourTurn, "It's your turn to act."))
}

// present shows the current node to the current player. entered is true
// when the story has just moved to the node; entry effects apply only
// then. A player with nothing to do is skipped. If a full rotation of
// players has nothing to do, the story cannot progress and the game ends.
func (s *Session) present(ctx context.Context, entered bool) {
	_, span := tracer.Start(ctx, "session.present", trace.WithAttributes(
		attribute.String("node.id", s.nodeID),
		attribute.Bool("node.entered", entered),
	))
	defer span.End()

	for skipped := 0; s.phase == InProgress; skipped++ {
		actor := s.current()
		var (
			node    *game.Node
			changed bool
			err     error
		)
		if entered {
			node, changed, err = s.engine.Enter(s.nodeID, actor.Character)
		} else {
			node, err = s.story.Node(s.nodeID)
		}
		if err != nil {
			s.end(fmt.Sprintf("Error: Node '%s' not found.", s.nodeID))
			return
		}
		if entered {
			s.record(Entry{Kind: EntryNode, Actor: actor.ID, NodeID: node.ID, Text: game.Render(node.Text, actor.Role)})
			entered = false
		}
		if changed {
			s.broadcastUpdate(actor)
		}

		s.broadcast(protocol.Format(protocol.NodeText, game.Render(node.Text, actor.Role)), "")
		if len(node.Choices) == 0 {
			s.end("Story ended: No more choices.")
			return
		}
		if vc := game.VoteChoice(node); vc != nil {
			s.startVote(vc)
			return
		}

		legal := game.LegalChoices(node, actor.Character)
		if len(legal) > 0 {
			texts := make([]string, len(legal))
			for i, c := range legal {
				texts[i] = game.Render(c.Text, actor.Role)
			}
			s.sendTo(actor.ID, protocol.Format(protocol.Choices, protocol.ChoiceList(texts)))
			return
		}

		s.sendTo(actor.ID, protocol.Format(protocol.Info, "No actions available for you this turn or for your role."))
		if skipped+1 >= len(s.order) {
			s.end(fmt.Sprintf("Story halted: no player can act at node '%s'.", node.ID))
			return
		}
		s.advance()
	}
}
