package inference

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/samcharles93/crust/internal/chat"
	"github.com/samcharles93/crust/internal/prompt"
)

// Session binds a conversation to one engine context and drives generations
// over it. The engine's positional cache makes concurrent generations on one
// context unsafe, so a session admits one in-flight call; a second caller
// gets ErrBusy instead of blocking. Conversation accessors are safe to call
// concurrently with a generation.
type Session struct {
	id       string
	engine   Engine
	gen      *Generator
	template prompt.Template
	conv     *chat.Conversation
	defaults Request

	mu        sync.Mutex
	busy      atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a session over engine, rendering prompts with tpl.
// opts become the session's per-call defaults, layered over Defaults().
func NewSession(engine Engine, tpl prompt.Template, opts Options) *Session {
	return &Session{
		id:       uuid.NewString(),
		engine:   engine,
		gen:      NewGenerator(engine),
		template: tpl,
		conv:     chat.New(),
		defaults: ResolveOptions(opts, Defaults()),
	}
}

// ID returns the session's identity.
func (s *Session) ID() string { return s.id }

// Template returns the prompt template the session renders with.
func (s *Session) Template() prompt.Template { return s.template }

// SetSystemPrompt replaces the conversation with a single system turn.
func (s *Session) SetSystemPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.SetSystemPrompt(text)
}

// Reset clears the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Reset()
}

// History returns a copy of the conversation turns, oldest first.
func (s *Session) History() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Turns()
}

// Restore replaces the conversation with turns.
func (s *Session) Restore(turns []chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Restore(turns)
}

// DropLast removes and returns the most recent turn.
func (s *Session) DropLast() (chat.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.DropLast()
}

// Chat appends a user turn, generates the reply and appends it as an
// assistant turn. On any generation error the user turn is left unanswered
// so Regenerate can retry with the same prompt. opts overlay the session
// defaults for this call only.
func (s *Session) Chat(ctx context.Context, userMsg string, opts Options, stream StreamFunc) (*Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conv.AppendUser(userMsg)
	return s.generateLocked(ctx, opts, stream)
}

// Regenerate re-runs generation for the trailing user turn, appending the
// assistant reply on success. The conversation must end with a user turn.
func (s *Session) Regenerate(ctx context.Context, opts Options, stream StreamFunc) (*Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()

	if role, ok := s.conv.LastRole(); !ok || role != chat.RoleUser {
		return nil, fmt.Errorf("inference: regenerate needs a trailing user turn")
	}
	return s.generateLocked(ctx, opts, stream)
}

// Complete generates over a raw prompt with no template and no conversation
// involvement.
func (s *Session) Complete(ctx context.Context, rawPrompt string, opts Options, stream StreamFunc) (*Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()

	req := ResolveOptions(opts, s.defaults)
	req.AddBOS = true
	req.ParseSpecial = true
	return s.gen.Generate(ctx, rawPrompt, &req, stream)
}

// Close releases the engine context. It blocks until any in-flight
// generation finishes and is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeOnce.Do(func() {
		if s.engine != nil {
			s.closeErr = s.engine.Close()
		}
	})
	return s.closeErr
}

func (s *Session) generateLocked(ctx context.Context, opts Options, stream StreamFunc) (*Result, error) {
	req := ResolveOptions(opts, s.defaults)
	req.AddBOS = s.template.AddBOS
	req.ParseSpecial = s.template.ParseSpecial
	if len(s.template.StopMarkers) > 0 {
		req.StopMarkers = append(append([]string(nil), s.template.StopMarkers...), req.StopMarkers...)
	}
	req.HiddenText = s.template.SpecialTokens

	promptText := s.template.Render(s.conv.Turns(), true)
	res, err := s.gen.Generate(ctx, promptText, &req, stream)
	if err != nil {
		return res, err
	}
	s.conv.AppendAssistant(res.Text)
	return res, nil
}
