package chat

import (
	"reflect"
	"testing"
)

func TestSetSystemPromptClearsHistory(t *testing.T) {
	t.Parallel()
	c := New()
	c.AppendUser("hello")
	c.AppendAssistant("hi")
	c.AppendUser("more")

	c.SetSystemPrompt("You are terse.")

	want := []Turn{{Role: RoleSystem, Content: "You are terse."}}
	if got := c.Turns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Turns() = %v, want %v", got, want)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	t.Parallel()
	c := NewWithSystem("sys")
	c.AppendUser("u1")
	c.AppendAssistant("a1")
	c.AppendUser("u2")

	want := []Turn{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "u2"},
	}
	if got := c.Turns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Turns() = %v, want %v", got, want)
	}
	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", c.Len())
	}
}

func TestTurnsReturnsCopy(t *testing.T) {
	t.Parallel()
	c := New()
	c.AppendUser("original")

	got := c.Turns()
	got[0].Content = "mutated"

	if again := c.Turns(); again[0].Content != "original" {
		t.Fatalf("conversation mutated through Turns() copy: %q", again[0].Content)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	c := NewWithSystem("sys")
	c.AppendUser("u")
	c.Reset()

	if c.Len() != 0 {
		t.Fatalf("Len() after Reset = %d, want 0", c.Len())
	}
	if _, ok := c.System(); ok {
		t.Fatal("System() reported a system prompt after Reset")
	}
	if _, ok := c.LastRole(); ok {
		t.Fatal("LastRole() reported a turn after Reset")
	}
}

func TestDropLast(t *testing.T) {
	t.Parallel()
	c := New()
	c.AppendUser("question")
	c.AppendAssistant("answer")

	turn, ok := c.DropLast()
	if !ok || turn.Role != RoleAssistant || turn.Content != "answer" {
		t.Fatalf("DropLast() = %+v, %v, want assistant answer", turn, ok)
	}
	if role, _ := c.LastRole(); role != RoleUser {
		t.Fatalf("LastRole() after DropLast = %v, want user", role)
	}

	c.DropLast()
	if _, ok := c.DropLast(); ok {
		t.Fatal("DropLast() on empty conversation reported a turn")
	}
}

func TestEmptyContentAllowed(t *testing.T) {
	t.Parallel()
	c := New()
	c.AppendUser("")
	role, ok := c.LastRole()
	if !ok || role != RoleUser {
		t.Fatalf("LastRole() = %v, %v, want user turn", role, ok)
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		turns   []Turn
		wantErr bool
	}{
		{
			name: "valid with system first",
			turns: []Turn{
				{Role: RoleSystem, Content: "s"},
				{Role: RoleUser, Content: "u"},
				{Role: RoleAssistant, Content: "a"},
			},
		},
		{
			name: "valid without system",
			turns: []Turn{
				{Role: RoleUser, Content: "u"},
				{Role: RoleAssistant, Content: "a"},
			},
		},
		{
			name: "system not first",
			turns: []Turn{
				{Role: RoleUser, Content: "u"},
				{Role: RoleSystem, Content: "s"},
			},
			wantErr: true,
		},
		{
			name:    "unknown role",
			turns:   []Turn{{Role: "tool", Content: "x"}},
			wantErr: true,
		},
		{
			name:  "empty",
			turns: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewWithSystem("stale")
			err := c.Restore(tt.turns)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Restore() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Restore() error: %v", err)
			}
			if got := c.Turns(); len(got) != len(tt.turns) {
				t.Fatalf("Turns() has %d turns, want %d", len(got), len(tt.turns))
			}
		})
	}
}

func TestRoleValid(t *testing.T) {
	t.Parallel()
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
		if !r.Valid() {
			t.Errorf("Role(%q).Valid() = false", r)
		}
	}
	for _, r := range []Role{"", "tool", "SYSTEM"} {
		if r.Valid() {
			t.Errorf("Role(%q).Valid() = true", r)
		}
	}
}
