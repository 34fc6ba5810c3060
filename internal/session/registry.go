package session

import (
	"fmt"
	"slices"

	"coopadventure/internal/game"
)

// Outlet delivers protocol lines to one connection. Send must not block;
// an outlet that cannot keep up closes its own connection.
type Outlet interface {
	Send(line string) error
	Close() error
}

// Player is an active participant: a character bound to a connection.
type Player struct {
	*game.Character
	out Outlet
}

type pendingConn struct {
	id  string
	out Outlet
}

// Registry tracks connections that have not picked a role yet and the
// active players. It is not safe for concurrent use; Session serializes
// every call.
type Registry struct {
	pending   map[string]*pendingConn
	players   map[string]*Player
	order     []string
	available []string
	roles     map[string]bool
	nextID    int
}

// NewRegistry returns a registry offering the given roles.
func NewRegistry(roles []string) *Registry {
	r := &Registry{
		pending:   map[string]*pendingConn{},
		players:   map[string]*Player{},
		available: slices.Clone(roles),
		roles:     make(map[string]bool, len(roles)),
	}
	for _, role := range roles {
		r.roles[role] = true
	}
	return r
}

// Admit registers a new pending connection and returns its temporary id.
// Ids equal to a role name are skipped so the two never collide.
func (r *Registry) Admit(out Outlet, limit int) (string, error) {
	if r.Count() >= limit {
		return "", ErrServerFull
	}
	var id string
	for id == "" || r.roles[id] {
		r.nextID++
		id = fmt.Sprintf("Player_%d", r.nextID)
	}
	r.pending[id] = &pendingConn{id: id, out: out}
	return id, nil
}

// Claim promotes the pending connection tempID to an active player with
// role. The check against the available roles and their removal happen
// together; on failure nothing changes.
func (r *Registry) Claim(tempID, role string, st *game.Story) (*Player, error) {
	pc, ok := r.pending[tempID]
	if !ok {
		if _, active := r.players[tempID]; active {
			return nil, ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("%w: unknown connection %s", ErrRoleRequired, tempID)
	}
	idx := slices.Index(r.available, role)
	if idx < 0 {
		return nil, &RoleError{Role: role, Available: r.Available()}
	}
	ch, err := game.NewCharacter(st, role)
	if err != nil {
		return nil, &RoleError{Role: role, Available: r.Available()}
	}
	r.available = slices.Delete(r.available, idx, idx+1)
	delete(r.pending, tempID)
	p := &Player{Character: ch, out: pc.out}
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	return p, nil
}

// Remove deletes id from whichever pool holds it. It reports the removed
// outlet and whether the connection was still pending. Removing an
// unknown id is a no-op.
func (r *Registry) Remove(id string) (out Outlet, wasPending, ok bool) {
	if pc, found := r.pending[id]; found {
		delete(r.pending, id)
		return pc.out, true, true
	}
	if p, found := r.players[id]; found {
		delete(r.players, id)
		r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })
		return p.out, false, true
	}
	return nil, false, false
}

// Player returns the active player with the given id.
func (r *Registry) Player(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Players returns active players in claim order.
func (r *Registry) Players() []*Player {
	out := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.players[id])
	}
	return out
}

// Order returns active player ids in claim order.
func (r *Registry) Order() []string {
	return slices.Clone(r.order)
}

// Pending returns the outlets of connections without a role.
func (r *Registry) Pending() []Outlet {
	out := make([]Outlet, 0, len(r.pending))
	for _, pc := range r.pending {
		out = append(out, pc.out)
	}
	return out
}

// Available returns the roles that can still be claimed.
func (r *Registry) Available() []string {
	return slices.Clone(r.available)
}

// ActiveCount returns the number of active players.
func (r *Registry) ActiveCount() int { return len(r.players) }

// Count returns pending plus active connections.
func (r *Registry) Count() int { return len(r.pending) + len(r.players) }

func (r *Registry) outlet(id string) Outlet {
	if p, ok := r.players[id]; ok {
		return p.out
	}
	if pc, ok := r.pending[id]; ok {
		return pc.out
	}
	return nil
}
