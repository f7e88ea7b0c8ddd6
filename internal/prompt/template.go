// Package prompt renders conversations into the text format a model family
// was trained on. Formats are plain data; adding a family is a new Template
// value, not new code.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samcharles93/crust/internal/chat"
)

// ErrUnknownTemplate is returned by Lookup for names with no builtin.
var ErrUnknownTemplate = errors.New("prompt: unknown template")

// RoleMarkers maps each role to the header emitted before its content.
type RoleMarkers struct {
	System    string
	User      string
	Assistant string
}

// Header returns the marker for the given role.
func (m RoleMarkers) Header(r chat.Role) string {
	switch r {
	case chat.RoleSystem:
		return m.System
	case chat.RoleUser:
		return m.User
	case chat.RoleAssistant:
		return m.Assistant
	}
	return ""
}

// Template describes one model family's prompt format. Values are immutable
// once built; Render never mutates the receiver, and sessions share Template
// values freely.
type Template struct {
	Name string

	// BeginOfText is emitted once at the very start of the prompt.
	BeginOfText string

	// Roles holds the per-role headers emitted before turn content.
	Roles RoleMarkers

	// TurnSuffix closes every turn.
	TurnSuffix string

	// GenerationHeader is the open assistant header appended when the model
	// should continue with an assistant reply.
	GenerationHeader string

	// StopMarkers end a generation when they appear in decoded output.
	StopMarkers []string

	// SpecialTokens are the literal text renderings of control tokens for
	// this family. They are stripped from streamed output.
	SpecialTokens []string

	// AddBOS and ParseSpecial are the tokenizer hints to use when encoding
	// a prompt rendered with this template.
	AddBOS       bool
	ParseSpecial bool
}

// Render formats turns into a single prompt string, in order. When
// addGenerationPrompt is true the result ends with the open assistant header
// so the engine's continuation becomes the assistant reply. An empty
// conversation renders to the begin-of-text marker plus that header alone.
func (t Template) Render(turns []chat.Turn, addGenerationPrompt bool) string {
	var b strings.Builder
	b.WriteString(t.BeginOfText)
	for _, turn := range turns {
		b.WriteString(t.Roles.Header(turn.Role))
		b.WriteString(turn.Content)
		b.WriteString(t.TurnSuffix)
	}
	if addGenerationPrompt {
		b.WriteString(t.GenerationHeader)
	}
	return b.String()
}

// Llama3 is the Meta Llama 3 instruct format. The begin-of-text marker is
// part of the rendered text, so prompts encode without an extra BOS.
func Llama3() Template {
	return Template{
		Name:        "llama3",
		BeginOfText: "<|begin_of_text|>",
		Roles: RoleMarkers{
			System:    "<|start_header_id|>system<|end_header_id|>",
			User:      "<|start_header_id|>user<|end_header_id|>",
			Assistant: "<|start_header_id|>assistant<|end_header_id|>",
		},
		TurnSuffix:       "<|eot_id|>",
		GenerationHeader: "<|start_header_id|>assistant<|end_header_id|>",
		SpecialTokens: []string{
			"<|begin_of_text|>", "<|end_of_text|>",
			"<|start_header_id|>", "<|end_header_id|>", "<|eot_id|>",
		},
		AddBOS:       false,
		ParseSpecial: true,
	}
}

// ChatML is the <|im_start|> format used by Qwen, LFM2 and many fine-tunes.
func ChatML() Template {
	return Template{
		Name: "chatml",
		Roles: RoleMarkers{
			System:    "<|im_start|>system\n",
			User:      "<|im_start|>user\n",
			Assistant: "<|im_start|>assistant\n",
		},
		TurnSuffix:       "<|im_end|>\n",
		GenerationHeader: "<|im_start|>assistant\n",
		SpecialTokens:    []string{"<|im_start|>", "<|im_end|>", "<|endoftext|>"},
		AddBOS:           true,
		ParseSpecial:     true,
	}
}

// Plain is a markerless format for base models: role names as text lines.
// Turn boundaries are enforced with textual stop markers instead of control
// tokens.
func Plain() Template {
	return Template{
		Name: "plain",
		Roles: RoleMarkers{
			System:    "System: ",
			User:      "User: ",
			Assistant: "Assistant: ",
		},
		TurnSuffix:       "\n",
		GenerationHeader: "Assistant:",
		StopMarkers:      []string{"\nUser:", "\nSystem:"},
		AddBOS:           true,
		ParseSpecial:     false,
	}
}

// Raw applies no formatting at all; turn contents are concatenated verbatim.
// Used for one-shot completion over a caller-built prompt.
func Raw() Template {
	return Template{
		Name:         "raw",
		AddBOS:       true,
		ParseSpecial: true,
	}
}

// Default is the template assumed when a session does not name one.
func Default() Template {
	return Llama3()
}

// Lookup resolves a builtin template by name.
func Lookup(name string) (Template, error) {
	switch name {
	case "llama3":
		return Llama3(), nil
	case "chatml":
		return ChatML(), nil
	case "plain":
		return Plain(), nil
	case "raw":
		return Raw(), nil
	}
	return Template{}, fmt.Errorf("%w: %q (have %s)", ErrUnknownTemplate, name, strings.Join(Names(), ", "))
}

// Names lists the builtin template names, sorted.
func Names() []string {
	names := []string{"llama3", "chatml", "plain", "raw"}
	sort.Strings(names)
	return names
}
