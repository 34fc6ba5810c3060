package session

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_AdmitAndClaim(t *testing.T) {
	st := loadStory(t, derelictStory)
	reg := NewRegistry(st.RoleOrder)

	id1, err := reg.Admit(&fakeOutlet{}, 2)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	id2, _ := reg.Admit(&fakeOutlet{}, 2)
	if _, err := reg.Admit(&fakeOutlet{}, 2); !errors.Is(err, ErrServerFull) {
		t.Errorf("Expected ErrServerFull, got %v", err)
	}

	p, err := reg.Claim(id2, "Technician", st)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if p.ID != "Technician" || p.Stats["tech"] != 8 {
		t.Errorf("Expected a Technician with tech 8, got %s %v", p.ID, p.Stats)
	}
	if _, err := reg.Claim(id1, "Scout", st); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got := reg.Order(); !reflect.DeepEqual(got, []string{"Technician", "Scout"}) {
		t.Errorf("Expected claim order, got %v", got)
	}
	if len(reg.Available()) != 0 || len(reg.Pending()) != 0 {
		t.Errorf("Expected nothing left, got %v and %d pending", reg.Available(), len(reg.Pending()))
	}
	if reg.ActiveCount() != 2 || reg.Count() != 2 {
		t.Errorf("Expected 2 active, got %d/%d", reg.ActiveCount(), reg.Count())
	}
}

func TestRegistry_ClaimFailuresChangeNothing(t *testing.T) {
	st := loadStory(t, derelictStory)
	reg := NewRegistry(st.RoleOrder)
	id, _ := reg.Admit(&fakeOutlet{}, 2)

	if _, err := reg.Claim(id, "Pilot", st); !errors.Is(err, ErrRoleUnavailable) {
		t.Errorf("Expected ErrRoleUnavailable, got %v", err)
	}
	if _, err := reg.Claim("Player_9", "Scout", st); !errors.Is(err, ErrRoleRequired) {
		t.Errorf("Expected ErrRoleRequired for an unknown connection, got %v", err)
	}
	if got := reg.Available(); !reflect.DeepEqual(got, []string{"Scout", "Technician"}) {
		t.Errorf("Expected roles untouched, got %v", got)
	}
	if len(reg.Pending()) != 1 {
		t.Errorf("Expected connection still pending, got %d", len(reg.Pending()))
	}
}

func TestRegistry_Remove(t *testing.T) {
	st := loadStory(t, derelictStory)
	reg := NewRegistry(st.RoleOrder)
	a, b := &fakeOutlet{}, &fakeOutlet{}
	idA, _ := reg.Admit(a, 2)
	idB, _ := reg.Admit(b, 2)
	reg.Claim(idA, "Scout", st)

	out, pending, ok := reg.Remove(idB)
	if !ok || !pending || out != b {
		t.Errorf("Expected pending removal of b, got %v %v", pending, ok)
	}
	out, pending, ok = reg.Remove("Scout")
	if !ok || pending || out != a {
		t.Errorf("Expected active removal of a, got %v %v", pending, ok)
	}
	if _, _, ok := reg.Remove("Scout"); ok {
		t.Error("Expected second removal to be a no-op")
	}
	if len(reg.Order()) != 0 {
		t.Errorf("Expected empty order, got %v", reg.Order())
	}
	// A claimed role is not offered again.
	if got := reg.Available(); !reflect.DeepEqual(got, []string{"Technician"}) {
		t.Errorf("Expected [Technician], got %v", got)
	}
}

func TestReply(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrServerFull, "SERVER_FULL:Server is full."},
		{ErrAlreadyVoted, "INFO:You have already voted."},
		{&RoleError{Role: "Pilot", Available: []string{"Scout", "Technician"}},
			"ERROR:Role 'Pilot' is not available or invalid. Available: Scout,Technician"},
		{ErrNotYourTurn, "ERROR:It is not your turn."},
		{errors.New("boom"), "ERROR:Request failed."},
	}
	for _, tt := range tests {
		if got := Reply(tt.err); got != tt.want {
			t.Errorf("Expected '%s', got '%s'", tt.want, got)
		}
	}
}

func TestRegistry_TemporaryIDsSkipRoleNames(t *testing.T) {
	st := loadStory(t, `{"start_node_id": "a", "max_players": 2,
	  "player_character_templates": {"Player_1": {}, "Player_2": {}},
	  "nodes": {"a": {"text": "A.", "choices": []}}}`)
	reg := NewRegistry(st.RoleOrder)

	first, second := &fakeOutlet{}, &fakeOutlet{}
	id1, _ := reg.Admit(first, 2)
	id2, _ := reg.Admit(second, 2)
	if id1 != "Player_3" || id2 != "Player_4" {
		t.Fatalf("Expected Player_3 and Player_4, got %s and %s", id1, id2)
	}

	if _, err := reg.Claim(id2, "Player_1", st); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if reg.outlet("Player_1") != second {
		t.Error("Expected Player_1 to resolve to the claiming connection")
	}
	out, wasPending, ok := reg.Remove("Player_1")
	if !ok || wasPending || out != second {
		t.Errorf("Expected the active Player_1 removed, got pending=%v ok=%v", wasPending, ok)
	}
	if len(reg.Pending()) != 1 {
		t.Errorf("Expected %s still pending, got %d pending", id1, len(reg.Pending()))
	}
}
