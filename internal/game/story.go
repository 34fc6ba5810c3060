package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidStory is returned when a story document cannot be decoded.
	ErrInvalidStory = errors.New("game: invalid story")
	// ErrUnknownNode is returned when traversal reaches a node id that the
	// story does not define.
	ErrUnknownNode = errors.New("game: unknown node")
	// ErrUnknownRole is returned when a role has no matching template.
	ErrUnknownRole = errors.New("game: unknown role")
)

var requiredKeys = []string{"start_node_id", "max_players", "nodes", "player_character_templates"}

type storyDoc struct {
	Title            string                 `json:"title"`
	StartNodeID      string                 `json:"start_node_id"`
	MaxPlayers       int                    `json:"max_players"`
	Nodes            map[string]nodeDoc     `json:"nodes"`
	Templates        map[string]templateDoc `json:"player_character_templates"`
	InitialStats     map[string]int         `json:"initial_stats"`
	InitialInventory []string               `json:"initial_inventory"`
}

type nodeDoc struct {
	ID      string      `json:"id"`
	Text    string      `json:"text"`
	Choices []choiceDoc `json:"choices"`
	Effects []effectDoc `json:"effects"`
}

type choiceDoc struct {
	Text              string         `json:"text"`
	TargetNodeID      string         `json:"target_node_id"`
	ActionableByRoles []string       `json:"actionable_by_roles"`
	Conditions        []conditionDoc `json:"conditions"`
	Effects           []effectDoc    `json:"effects"`
	EffectsForChooser []effectDoc    `json:"effects_for_chooser"`
	RequiresVote      bool           `json:"requires_vote"`
}

type templateDoc struct {
	Description      string         `json:"description"`
	InitialStats     map[string]int `json:"initial_stats"`
	InitialInventory []string       `json:"initial_inventory"`
	StartNodeID      string         `json:"start_node_id"`
}

type conditionDoc struct {
	Type        string `json:"type"`
	Stat        string `json:"stat"`
	GreaterThan *int   `json:"requires_greater_than"`
	LessThan    *int   `json:"requires_less_than"`
	EqualTo     *int   `json:"requires_equal_to"`
	Item        string `json:"item"`
	Requires    string `json:"requires"`
}

type effectDoc struct {
	Type     string `json:"type"`
	Stat     string `json:"stat"`
	ChangeBy *int   `json:"change_by"`
	SetTo    *int   `json:"set_to"`
	Item     string `json:"item"`
	Action   string `json:"action"`
}

// LoadStory loads a story from a JSON or YAML file. YAML documents use
// the same keys as JSON and go through the same validation.
func LoadStory(path string) (*Story, error) {
	// Resolve path to prevent directory traversal attacks
	cleanPath := filepath.Clean(path)
	b, err := os.ReadFile(cleanPath) //nolint:gosec // path is cleaned and validated
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".yaml", ".yml":
		b, err = yamlToJSON(b)
		if err != nil {
			return nil, err
		}
	}
	return Load(b)
}

// yamlToJSON re-encodes a YAML document as JSON. Mapping keys become
// strings and keep their document order, so template order survives.
func yamlToJSON(b []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStory, err)
	}
	var buf bytes.Buffer
	if err := writeJSON(&buf, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStory, err)
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return errors.New("empty document")
		}
		return writeJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(k.Value)
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %v", n.Line, err)
		}
		buf.Write(out)
	default:
		return fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
	return nil
}

// Load decodes a story document. Only the document shape is validated;
// dangling node ids and role names surface when traversal reaches them.
func Load(b []byte) (*Story, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(b, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStory, err)
	}
	for _, k := range requiredKeys {
		if _, ok := top[k]; !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrInvalidStory, k)
		}
	}

	var doc storyDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStory, err)
	}
	if doc.MaxPlayers < 1 {
		return nil, fmt.Errorf("%w: max_players must be at least 1, got %d", ErrInvalidStory, doc.MaxPlayers)
	}
	if len(doc.Templates) == 0 {
		return nil, fmt.Errorf("%w: no player character templates", ErrInvalidStory)
	}
	order, err := objectKeys(top["player_character_templates"])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStory, err)
	}

	s := &Story{
		Title:            doc.Title,
		StartNodeID:      doc.StartNodeID,
		MaxPlayers:       doc.MaxPlayers,
		Nodes:            make(map[string]*Node, len(doc.Nodes)),
		Templates:        make(map[string]*Template, len(doc.Templates)),
		RoleOrder:        order,
		InitialStats:     doc.InitialStats,
		InitialInventory: doc.InitialInventory,
	}
	for id, nd := range doc.Nodes {
		n, err := nd.build(id)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidStory, id, err)
		}
		s.Nodes[id] = n
	}
	for role, td := range doc.Templates {
		s.Templates[role] = &Template{
			Description:      td.Description,
			InitialStats:     td.InitialStats,
			InitialInventory: td.InitialInventory,
			StartNodeID:      td.StartNodeID,
		}
	}
	return s, nil
}

// Node returns the node with the given id.
func (s *Story) Node(id string) (*Node, error) {
	n := s.Nodes[id]
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n, nil
}

func (nd nodeDoc) build(key string) (*Node, error) {
	n := &Node{ID: nd.ID, Text: nd.Text}
	if n.ID == "" {
		n.ID = key
	}
	var err error
	if n.Effects, err = buildEffects(nd.Effects); err != nil {
		return nil, err
	}
	for i, cd := range nd.Choices {
		c := Choice{
			Text:              cd.Text,
			TargetNodeID:      cd.TargetNodeID,
			ActionableByRoles: cd.ActionableByRoles,
			RequiresVote:      cd.RequiresVote,
		}
		if c.Conditions, err = buildConditions(cd.Conditions); err != nil {
			return nil, fmt.Errorf("choice %d: %v", i+1, err)
		}
		if c.Effects, err = buildEffects(cd.Effects); err != nil {
			return nil, fmt.Errorf("choice %d: %v", i+1, err)
		}
		if c.EffectsForChooser, err = buildEffects(cd.EffectsForChooser); err != nil {
			return nil, fmt.Errorf("choice %d: %v", i+1, err)
		}
		n.Choices = append(n.Choices, c)
	}
	return n, nil
}

func buildConditions(docs []conditionDoc) ([]Condition, error) {
	var out []Condition
	for _, d := range docs {
		switch d.Type {
		case "stat_condition":
			out = append(out, StatCondition{
				Stat:        d.Stat,
				GreaterThan: d.GreaterThan,
				LessThan:    d.LessThan,
				EqualTo:     d.EqualTo,
			})
		case "inventory_condition":
			req := Requirement(d.Requires)
			switch req {
			case RequiresPresent, RequiresAbsent, "":
			default:
				return nil, fmt.Errorf("unknown inventory requirement %q", d.Requires)
			}
			out = append(out, InventoryCondition{Item: d.Item, Requires: req})
		default:
			return nil, fmt.Errorf("unknown condition type %q", d.Type)
		}
	}
	return out, nil
}

func buildEffects(docs []effectDoc) ([]Effect, error) {
	var out []Effect
	for _, d := range docs {
		switch d.Type {
		case "stat_change":
			out = append(out, StatChange{Stat: d.Stat, ChangeBy: d.ChangeBy, SetTo: d.SetTo})
		case "inventory_change":
			act := InventoryAction(d.Action)
			switch act {
			case ActionAdd, ActionRemove:
			default:
				return nil, fmt.Errorf("unknown inventory action %q", d.Action)
			}
			out = append(out, InventoryChange{Item: d.Item, Action: act})
		default:
			return nil, fmt.Errorf("unknown effect type %q", d.Type)
		}
	}
	return out, nil
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object")
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
