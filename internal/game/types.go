package game

// Story is a complete multiplayer adventure. It is read-only once loaded
// and shared by every player in a session.
type Story struct {
	Title       string
	StartNodeID string
	MaxPlayers  int
	Nodes       map[string]*Node
	Templates   map[string]*Template
	// RoleOrder lists template names in the order they were declared.
	RoleOrder []string

	InitialStats     map[string]int
	InitialInventory []string
}

// Node represents a single scene in the adventure.
type Node struct {
	ID      string
	Text    string
	Choices []Choice
	Effects []Effect
}

// Choice is an edge from one node to another.
type Choice struct {
	Text         string
	TargetNodeID string
	// ActionableByRoles restricts the choice to the listed roles. A nil
	// slice means any role may take it.
	ActionableByRoles []string
	Conditions        []Condition
	Effects           []Effect
	EffectsForChooser []Effect
	RequiresVote      bool
}

// Template is a character archetype a player claims once per session.
type Template struct {
	Description      string
	InitialStats     map[string]int
	InitialInventory []string
	// StartNodeID is authored but not used by the turn logic; every game
	// starts at Story.StartNodeID.
	StartNodeID string
}

// Condition is a predicate over a character's stats or inventory.
// Implementations are StatCondition and InventoryCondition.
type Condition interface {
	// holds reports whether the condition passes and whether it applied
	// at all. Malformed clauses report applied=false.
	holds(ch *Character) (ok, applied bool)
}

// StatCondition compares a stat against one or more thresholds. Every
// present threshold must hold.
type StatCondition struct {
	Stat        string
	GreaterThan *int
	LessThan    *int
	EqualTo     *int
}

// Requirement is the inventory predicate of an InventoryCondition.
type Requirement string

const (
	RequiresPresent Requirement = "present"
	RequiresAbsent  Requirement = "absent"
)

// InventoryCondition checks whether an item is held.
type InventoryCondition struct {
	Item     string
	Requires Requirement
}

// Effect is a mutation of a character's stats or inventory.
// Implementations are StatChange and InventoryChange.
type Effect interface {
	apply(ch *Character) bool
}

// StatChange adds to or overwrites a stat. When both ChangeBy and SetTo
// are set, ChangeBy wins.
type StatChange struct {
	Stat     string
	ChangeBy *int
	SetTo    *int
}

// InventoryAction is the operation of an InventoryChange.
type InventoryAction string

const (
	ActionAdd    InventoryAction = "add"
	ActionRemove InventoryAction = "remove"
)

// InventoryChange adds or removes an item. Adding a held item and
// removing a missing one are no-ops.
type InventoryChange struct {
	Item   string
	Action InventoryAction
}
