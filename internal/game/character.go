package game

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Character is the mutable state of one player. The session owns it; the
// rules in this package are the only code that changes it.
type Character struct {
	ID        string
	Role      string
	Stats     map[string]int
	Inventory Inventory
}

// Inventory is a set of item names.
type Inventory map[string]struct{}

// NewInventory returns an inventory holding the given items once each.
func NewInventory(items ...string) Inventory {
	inv := make(Inventory, len(items))
	for _, it := range items {
		inv[it] = struct{}{}
	}
	return inv
}

// Has reports whether the item is held.
func (inv Inventory) Has(item string) bool {
	_, ok := inv[item]
	return ok
}

// Items returns the held items in sorted order.
func (inv Inventory) Items() []string {
	out := make([]string, 0, len(inv))
	for it := range inv {
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// NewCharacter instantiates the template for role. The character gets
// its own copy of the story-wide defaults overlaid with the template's
// stats and items.
func NewCharacter(st *Story, role string) (*Character, error) {
	tpl := st.Templates[role]
	if tpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	ch := &Character{
		ID:        role,
		Role:      role,
		Stats:     make(map[string]int, len(st.InitialStats)+len(tpl.InitialStats)),
		Inventory: NewInventory(st.InitialInventory...),
	}
	for k, v := range st.InitialStats {
		ch.Stats[k] = v
	}
	for k, v := range tpl.InitialStats {
		ch.Stats[k] = v
	}
	for _, it := range tpl.InitialInventory {
		ch.Inventory[it] = struct{}{}
	}
	return ch, nil
}

// Stat returns the named stat, reading a missing stat as 0.
func (c *Character) Stat(name string) int {
	return c.Stats[name]
}

// StatsJSON encodes the stats map. Keys come out sorted.
func (c *Character) StatsJSON() string {
	b, _ := json.Marshal(c.statsOrEmpty())
	return string(b)
}

// InventoryJSON encodes the inventory as a sorted array.
func (c *Character) InventoryJSON() string {
	b, _ := json.Marshal(c.Inventory.Items())
	return string(b)
}

// StateJSON encodes stats and inventory together.
func (c *Character) StateJSON() string {
	b, _ := json.Marshal(struct {
		Stats     map[string]int `json:"stats"`
		Inventory []string       `json:"inventory"`
	}{c.statsOrEmpty(), c.Inventory.Items()})
	return string(b)
}

func (c *Character) statsOrEmpty() map[string]int {
	if c.Stats == nil {
		return map[string]int{}
	}
	return c.Stats
}
