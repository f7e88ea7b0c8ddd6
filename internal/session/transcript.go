package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/samcharles93/crust/internal/chat"
	"github.com/samcharles93/crust/internal/inference"
)

// Transcript is the saved form of one conversation: the turns plus enough
// metadata to resume them under the same prompt template.
type Transcript struct {
	ID       string      `json:"id"`
	Template string      `json:"template"`
	SavedAt  time.Time   `json:"saved_at"`
	Turns    []chat.Turn `json:"turns"`
}

// Snapshot captures a session's conversation as a transcript.
func Snapshot(s *inference.Session) *Transcript {
	return &Transcript{
		ID:       s.ID(),
		Template: s.Template().Name,
		SavedAt:  time.Now().UTC(),
		Turns:    s.History(),
	}
}

// Apply replaces the session's conversation with the transcript's turns.
// The session must render with the template the transcript was saved under;
// replaying turns into a different prompt dialect would corrupt the context.
func (t *Transcript) Apply(s *inference.Session) error {
	if t.Template != "" && t.Template != s.Template().Name {
		return fmt.Errorf("session: transcript uses template %q, session renders %q", t.Template, s.Template().Name)
	}
	return s.Restore(t.Turns)
}

// WriteFile saves the transcript as indented JSON, creating parent
// directories as needed.
func (t *Transcript) WriteFile(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode transcript: %w", err)
	}
	data = append(data, '\n')
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: create transcript dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write transcript: %w", err)
	}
	return nil
}

// ReadTranscript loads a transcript saved by WriteFile.
func ReadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("session: decode transcript %s: %w", path, err)
	}
	for i, turn := range t.Turns {
		if !turn.Role.Valid() {
			return nil, fmt.Errorf("session: transcript %s: turn %d has unknown role %q", path, i, turn.Role)
		}
	}
	return &t, nil
}
