package game

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrChoiceOutOfRange is returned for a choice number outside the legal list.
var ErrChoiceOutOfRange = errors.New("game: choice out of range")

// Evaluate reports whether every condition holds for ch. An empty list
// passes. Malformed clauses are skipped. Evaluate never mutates ch.
func Evaluate(conds []Condition, ch *Character) bool {
	for _, c := range conds {
		if ok, applied := c.holds(ch); applied && !ok {
			return false
		}
	}
	return true
}

func (c StatCondition) holds(ch *Character) (bool, bool) {
	if c.Stat == "" || (c.GreaterThan == nil && c.LessThan == nil && c.EqualTo == nil) {
		return false, false
	}
	v := ch.Stat(c.Stat)
	if c.GreaterThan != nil && !(v > *c.GreaterThan) {
		return false, true
	}
	if c.LessThan != nil && !(v < *c.LessThan) {
		return false, true
	}
	if c.EqualTo != nil && v != *c.EqualTo {
		return false, true
	}
	return true, true
}

func (c InventoryCondition) holds(ch *Character) (bool, bool) {
	if c.Item == "" || c.Requires == "" {
		return false, false
	}
	switch c.Requires {
	case RequiresPresent:
		return ch.Inventory.Has(c.Item), true
	case RequiresAbsent:
		return !ch.Inventory.Has(c.Item), true
	}
	return false, false
}

// Apply applies effects to ch in list order and reports whether anything
// changed. The caller is responsible for telling other players.
func Apply(effects []Effect, ch *Character) bool {
	changed := false
	for _, ef := range effects {
		if ef.apply(ch) {
			changed = true
		}
	}
	return changed
}

func (e StatChange) apply(ch *Character) bool {
	if e.Stat == "" {
		return false
	}
	if ch.Stats == nil {
		ch.Stats = map[string]int{}
	}
	old, had := ch.Stats[e.Stat]
	switch {
	case e.ChangeBy != nil:
		ch.Stats[e.Stat] = old + *e.ChangeBy
	case e.SetTo != nil:
		ch.Stats[e.Stat] = *e.SetTo
	default:
		return false
	}
	return !had || ch.Stats[e.Stat] != old
}

func (e InventoryChange) apply(ch *Character) bool {
	if e.Item == "" {
		return false
	}
	if ch.Inventory == nil {
		ch.Inventory = Inventory{}
	}
	switch e.Action {
	case ActionAdd:
		if ch.Inventory.Has(e.Item) {
			return false
		}
		ch.Inventory[e.Item] = struct{}{}
		return true
	case ActionRemove:
		if !ch.Inventory.Has(e.Item) {
			return false
		}
		delete(ch.Inventory, e.Item)
		return true
	}
	return false
}

// Allows reports whether role may take the choice.
func (c *Choice) Allows(role string) bool {
	return c.ActionableByRoles == nil || slices.Contains(c.ActionableByRoles, role)
}

// LegalChoices returns the choices ch may take at node, in authored
// order. Vote choices are never individually legal.
func LegalChoices(node *Node, ch *Character) []*Choice {
	var out []*Choice
	for i := range node.Choices {
		c := &node.Choices[i]
		if c.RequiresVote {
			continue
		}
		if c.Allows(ch.Role) && Evaluate(c.Conditions, ch) {
			out = append(out, c)
		}
	}
	return out
}

// VoteChoice returns the first choice at node that needs a group vote,
// or nil. Later vote choices on the same node are ignored.
func VoteChoice(node *Node) *Choice {
	for i := range node.Choices {
		if node.Choices[i].RequiresVote {
			return &node.Choices[i]
		}
	}
	return nil
}

// Render substitutes the acting player's role into text.
func Render(text, role string) string {
	return strings.NewReplacer(
		"{current_player_name}", role,
		"{acting_player_name}", role,
	).Replace(text)
}

// Engine applies player actions against a story.
type Engine struct {
	Story *Story
}

// StepResult describes what a choice did. The session publishes it.
type StepResult struct {
	Choice         *Choice
	Next           string
	ChooserChanged bool
}

// ApplyChoice takes the n-th (1-based) legal choice at nodeID for ch. The
// legal list is derived fresh on every call. An out-of-range n returns
// ErrChoiceOutOfRange and leaves ch untouched.
func (e *Engine) ApplyChoice(nodeID string, ch *Character, n int) (StepResult, error) {
	node, err := e.Story.Node(nodeID)
	if err != nil {
		return StepResult{}, err
	}
	legal := LegalChoices(node, ch)
	if n < 1 || n > len(legal) {
		return StepResult{}, fmt.Errorf("%w: %d of %d", ErrChoiceOutOfRange, n, len(legal))
	}
	c := legal[n-1]
	changed := Apply(c.EffectsForChooser, ch)
	if Apply(c.Effects, ch) {
		changed = true
	}
	return StepResult{Choice: c, Next: c.TargetNodeID, ChooserChanged: changed}, nil
}

// Enter looks up nodeID and applies its entry effects to ch.
func (e *Engine) Enter(nodeID string, ch *Character) (*Node, bool, error) {
	node, err := e.Story.Node(nodeID)
	if err != nil {
		return nil, false, err
	}
	return node, Apply(node.Effects, ch), nil
}
