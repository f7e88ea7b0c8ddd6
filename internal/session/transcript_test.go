package session

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/samcharles93/crust/internal/chat"
	"github.com/samcharles93/crust/internal/inference"
	"github.com/samcharles93/crust/internal/prompt"
)

func testTurns() []chat.Turn {
	return []chat.Turn{
		{Role: chat.RoleSystem, Content: "Be brief."},
		{Role: chat.RoleUser, Content: "What is 2+2?"},
		{Role: chat.RoleAssistant, Content: "4"},
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	t.Parallel()
	sess, _ := newStubSession()
	if err := sess.Restore(testTurns()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	tr := Snapshot(sess)
	if tr.ID != sess.ID() {
		t.Fatalf("transcript id = %q, want %q", tr.ID, sess.ID())
	}
	if tr.Template != sess.Template().Name {
		t.Fatalf("transcript template = %q, want %q", tr.Template, sess.Template().Name)
	}
	if tr.SavedAt.IsZero() {
		t.Fatal("transcript has zero SavedAt")
	}

	path := filepath.Join(t.TempDir(), "chat.json")
	if err := tr.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := ReadTranscript(path)
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if loaded.ID != tr.ID || loaded.Template != tr.Template {
		t.Fatalf("loaded id/template %q/%q, want %q/%q", loaded.ID, loaded.Template, tr.ID, tr.Template)
	}
	if !loaded.SavedAt.Equal(tr.SavedAt) {
		t.Fatalf("loaded SavedAt %v, want %v", loaded.SavedAt, tr.SavedAt)
	}
	if !reflect.DeepEqual(loaded.Turns, testTurns()) {
		t.Fatalf("loaded turns %+v, want %+v", loaded.Turns, testTurns())
	}

	fresh, _ := newStubSession()
	if err := loaded.Apply(fresh); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(fresh.History(), testTurns()) {
		t.Fatalf("restored history %+v, want %+v", fresh.History(), testTurns())
	}
}

func TestTranscriptApplyTemplateMismatch(t *testing.T) {
	t.Parallel()
	sess, _ := newStubSession()
	tr := Snapshot(sess)

	other := inference.NewSession(&stubEngine{}, prompt.ChatML(), inference.Options{})
	err := tr.Apply(other)
	if err == nil {
		t.Fatal("Apply across templates succeeded")
	}
	if !strings.Contains(err.Error(), "llama3") || !strings.Contains(err.Error(), "chatml") {
		t.Fatalf("mismatch error does not name both templates: %v", err)
	}
}

func TestTranscriptApplyEmptyTemplateName(t *testing.T) {
	t.Parallel()
	tr := &Transcript{
		Turns: []chat.Turn{{Role: chat.RoleUser, Content: "hi"}},
	}
	sess, _ := newStubSession()
	if err := tr.Apply(sess); err != nil {
		t.Fatalf("Apply without template name: %v", err)
	}
	if !reflect.DeepEqual(sess.History(), tr.Turns) {
		t.Fatalf("history %+v, want %+v", sess.History(), tr.Turns)
	}
}

func TestWriteFileCreatesParentDirs(t *testing.T) {
	t.Parallel()
	sess, _ := newStubSession()
	tr := Snapshot(sess)

	path := filepath.Join(t.TempDir(), "nested", "saves", "chat.json")
	if err := tr.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("transcript file missing: %v", err)
	}
}

func TestReadTranscriptRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	data := `{"id":"x","template":"llama3","turns":[{"role":"narrator","content":"hi"}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := ReadTranscript(path)
	if err == nil || !strings.Contains(err.Error(), "narrator") {
		t.Fatalf("expected unknown-role error naming the role, got: %v", err)
	}
}

func TestReadTranscriptRejectsBadJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "trunc.json")
	if err := os.WriteFile(path, []byte(`{"id":"x"`), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := ReadTranscript(path); err == nil {
		t.Fatal("expected decode error for truncated JSON")
	}
}

func TestReadTranscriptMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := ReadTranscript(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
