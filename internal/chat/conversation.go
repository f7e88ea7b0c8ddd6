// Package chat holds the multi-turn conversation state that prompt rendering
// and generation operate on.
package chat

import "fmt"

// Role identifies the speaker of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is a single message in a conversation. Empty content is allowed.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an ordered log of turns. It owns its backing slice; Turns
// returns a copy so callers cannot reorder history. At most one system turn
// exists and it is always first. A Conversation is not safe for concurrent
// use; callers serialize access (Session does this).
type Conversation struct {
	turns []Turn
}

// New returns an empty conversation.
func New() *Conversation {
	return &Conversation{}
}

// NewWithSystem returns a conversation seeded with one system turn.
func NewWithSystem(prompt string) *Conversation {
	c := New()
	c.SetSystemPrompt(prompt)
	return c
}

// SetSystemPrompt clears the conversation and seeds a single system turn.
func (c *Conversation) SetSystemPrompt(text string) {
	c.turns = append(c.turns[:0], Turn{Role: RoleSystem, Content: text})
}

// AppendUser adds a user turn at the end of the conversation.
func (c *Conversation) AppendUser(text string) {
	c.turns = append(c.turns, Turn{Role: RoleUser, Content: text})
}

// AppendAssistant adds an assistant turn at the end of the conversation.
func (c *Conversation) AppendAssistant(text string) {
	c.turns = append(c.turns, Turn{Role: RoleAssistant, Content: text})
}

// Reset removes all turns, including any system turn.
func (c *Conversation) Reset() {
	c.turns = c.turns[:0]
}

// Restore replaces the conversation with the given turns, validating that
// roles are known and that a system turn, if present, is unique and first.
// Used when resuming a saved transcript.
func (c *Conversation) Restore(turns []Turn) error {
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("chat: turn %d has unknown role %q", i, t.Role)
		}
		if t.Role == RoleSystem && i != 0 {
			return fmt.Errorf("chat: system turn at position %d, must be first", i)
		}
	}
	c.turns = append(c.turns[:0], turns...)
	return nil
}

// Turns returns a copy of the turn log in dialogue order.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// DropLast removes and returns the final turn, or false when empty.
func (c *Conversation) DropLast() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	last := c.turns[len(c.turns)-1]
	c.turns = c.turns[:len(c.turns)-1]
	return last, true
}

// LastRole returns the role of the final turn, or false when empty.
func (c *Conversation) LastRole() (Role, bool) {
	if len(c.turns) == 0 {
		return "", false
	}
	return c.turns[len(c.turns)-1].Role, true
}

// System returns the system prompt, or false when none is set.
func (c *Conversation) System() (string, bool) {
	if len(c.turns) > 0 && c.turns[0].Role == RoleSystem {
		return c.turns[0].Content, true
	}
	return "", false
}
