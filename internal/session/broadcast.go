package session

import (
	"log"

	"coopadventure/internal/protocol"
)

// broadcast queues line for every active player except exclude. A failed
// delivery affects only that player's connection.
func (s *Session) broadcast(line, exclude string) {
	for _, p := range s.reg.Players() {
		if p.ID == exclude {
			continue
		}
		s.deliver(p.ID, p.out, line)
	}
}

// sendTo queues line for one pending or active connection.
func (s *Session) sendTo(id, line string) {
	out := s.reg.outlet(id)
	if out == nil {
		return
	}
	s.deliver(id, out, line)
}

func (s *Session) deliver(id string, out Outlet, line string) {
	if err := out.Send(line); err != nil {
		log.Printf("session %s: send to %s: %v", s.id, id, err)
	}
}

func (s *Session) broadcastUpdate(p *Player) {
	s.broadcast(protocol.Format(protocol.PlayerUpdate, p.ID, p.StateJSON()), "")
}
