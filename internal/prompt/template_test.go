package prompt

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/samcharles93/crust/internal/chat"
)

func TestLlama3Render(t *testing.T) {
	t.Parallel()

	turns := []chat.Turn{
		{Role: chat.RoleSystem, Content: "You are a helpful assistant."},
		{Role: chat.RoleUser, Content: "What is 2+2?"},
	}

	got := Llama3().Render(turns, true)
	want := "<|begin_of_text|>" +
		"<|start_header_id|>system<|end_header_id|>You are a helpful assistant.<|eot_id|>" +
		"<|start_header_id|>user<|end_header_id|>What is 2+2?<|eot_id|>" +
		"<|start_header_id|>assistant<|end_header_id|>"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestChatMLRender(t *testing.T) {
	t.Parallel()

	turns := []chat.Turn{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "hello"},
		{Role: chat.RoleUser, Content: "bye"},
	}

	got := ChatML().Render(turns, true)
	want := "<|im_start|>user\nhi<|im_end|>\n" +
		"<|im_start|>assistant\nhello<|im_end|>\n" +
		"<|im_start|>user\nbye<|im_end|>\n" +
		"<|im_start|>assistant\n"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestPlainRender(t *testing.T) {
	t.Parallel()

	turns := []chat.Turn{
		{Role: chat.RoleSystem, Content: "Be brief."},
		{Role: chat.RoleUser, Content: "hi"},
	}

	got := Plain().Render(turns, true)
	want := "System: Be brief.\nUser: hi\nAssistant:"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRawRenderConcatenates(t *testing.T) {
	t.Parallel()

	turns := []chat.Turn{
		{Role: chat.RoleUser, Content: "once upon"},
		{Role: chat.RoleUser, Content: " a time"},
	}
	if got, want := Raw().Render(turns, true), "once upon a time"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

// An empty conversation must still produce a usable prompt: the model is
// cued to speak first, and no user or system turn is fabricated.
func TestRenderEmptyConversation(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"llama3", "chatml", "plain"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tpl, err := Lookup(name)
			if err != nil {
				t.Fatalf("Lookup(%q): %v", name, err)
			}
			got := tpl.Render(nil, true)
			if !strings.HasSuffix(got, tpl.GenerationHeader) {
				t.Errorf("Render(nil) = %q, want suffix %q", got, tpl.GenerationHeader)
			}
			if body := strings.TrimPrefix(got, tpl.BeginOfText); body != tpl.GenerationHeader {
				t.Errorf("Render(nil) body = %q, want only %q", body, tpl.GenerationHeader)
			}
			for _, marker := range []string{tpl.Roles.User, tpl.Roles.System} {
				if marker != "" && strings.Contains(got, marker) && marker != tpl.GenerationHeader {
					t.Errorf("Render(nil) = %q, contains %q", got, marker)
				}
			}
		})
	}
}

func TestRenderWithoutGenerationPrompt(t *testing.T) {
	t.Parallel()

	turns := []chat.Turn{{Role: chat.RoleUser, Content: "hi"}}
	got := Llama3().Render(turns, false)
	if strings.HasSuffix(got, Llama3().GenerationHeader) {
		t.Errorf("Render(false) = %q, should not end in assistant header", got)
	}
	if want := "<|eot_id|>"; !strings.HasSuffix(got, want) {
		t.Errorf("Render(false) = %q, want suffix %q", got, want)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr bool
	}{
		{name: "llama3", arg: "llama3", want: "llama3"},
		{name: "chatml", arg: "chatml", want: "chatml"},
		{name: "plain", arg: "plain", want: "plain"},
		{name: "raw", arg: "raw", want: "raw"},
		{name: "unknown", arg: "vicuna", wantErr: true},
		{name: "empty", arg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Lookup(tt.arg)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownTemplate) {
					t.Fatalf("Lookup(%q) error = %v, want ErrUnknownTemplate", tt.arg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup(%q): %v", tt.arg, err)
			}
			if got.Name != tt.want {
				t.Errorf("Lookup(%q).Name = %q, want %q", tt.arg, got.Name, tt.want)
			}
		})
	}
}

func TestNamesSorted(t *testing.T) {
	t.Parallel()

	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names() = %v, want sorted", names)
	}
	want := []string{"chatml", "llama3", "plain", "raw"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func TestHeaderUnknownRole(t *testing.T) {
	t.Parallel()

	m := RoleMarkers{System: "s", User: "u", Assistant: "a"}
	if got := m.Header(chat.Role("tool")); got != "" {
		t.Errorf("Header(tool) = %q, want empty", got)
	}
}
