// Package reasoning separates a model's visible answer from the thinking
// block some instruct models emit before it. The split is display-level:
// callers decide whether thinking text is shown, dimmed or dropped.
package reasoning

import "strings"

// Tags delimits a thinking block. Matching is case-insensitive.
type Tags struct {
	Open  string
	Close string
}

// ThinkTags is the DeepSeek-style <think>...</think> convention, the one in
// common use across reasoning fine-tunes.
var ThinkTags = Tags{Open: "<think>", Close: "</think>"}

// Split is raw model output divided into the visible answer and the
// thinking that preceded or interleaved it.
type Split struct {
	Content   string
	Reasoning string
}

// SplitRaw divides raw output on ThinkTags. An opened but unclosed block
// runs to the end of the text and counts entirely as reasoning.
func SplitRaw(raw string) Split {
	return ThinkTags.Split(raw)
}

// Split divides raw output on the receiver's tag pair.
func (t Tags) Split(raw string) Split {
	lower := strings.ToLower(raw)
	openTag := strings.ToLower(t.Open)
	closeTag := strings.ToLower(t.Close)

	var content, reasoning strings.Builder
	cursor := 0
	for cursor < len(raw) {
		start := strings.Index(lower[cursor:], openTag)
		if start < 0 {
			content.WriteString(raw[cursor:])
			break
		}
		start += cursor
		content.WriteString(raw[cursor:start])

		inner := start + len(openTag)
		end := strings.Index(lower[inner:], closeTag)
		if end < 0 {
			reasoning.WriteString(raw[inner:])
			break
		}
		end += inner
		reasoning.WriteString(raw[inner:end])
		cursor = end + len(closeTag)
	}

	return Split{
		Content:   content.String(),
		Reasoning: reasoning.String(),
	}
}

// Strip returns raw with every thinking block removed, trimmed of the
// surrounding whitespace the blocks leave behind. Used when replayed text
// must not re-enter the context window with its reasoning attached.
func (t Tags) Strip(raw string) string {
	return strings.TrimSpace(t.Split(raw).Content)
}

// splitStream is Split with trailing bytes that could still grow into a tag
// held back, so a fragment that cuts a tag in half is never emitted and then
// retracted.
func (t Tags) splitStream(raw string) Split {
	lower := strings.ToLower(raw)
	openTag := strings.ToLower(t.Open)
	closeTag := strings.ToLower(t.Close)

	var content, reasoning strings.Builder
	cursor := 0
	for cursor < len(raw) {
		start := strings.Index(lower[cursor:], openTag)
		if start < 0 {
			rest := raw[cursor:]
			content.WriteString(rest[:len(rest)-partialTagLen(lower[cursor:], openTag)])
			break
		}
		start += cursor
		content.WriteString(raw[cursor:start])

		inner := start + len(openTag)
		end := strings.Index(lower[inner:], closeTag)
		if end < 0 {
			rest := raw[inner:]
			reasoning.WriteString(rest[:len(rest)-partialTagLen(lower[inner:], closeTag)])
			break
		}
		end += inner
		reasoning.WriteString(raw[inner:end])
		cursor = end + len(closeTag)
	}

	return Split{
		Content:   content.String(),
		Reasoning: reasoning.String(),
	}
}

// partialTagLen returns the length of the longest suffix of s that is a
// proper prefix of tag. Both strings must already share case.
func partialTagLen(s, tag string) int {
	longest := len(tag) - 1
	if longest > len(s) {
		longest = len(s)
	}
	for n := longest; n > 0; n-- {
		if s[len(s)-n:] == tag[:n] {
			return n
		}
	}
	return 0
}

// Splitter incrementally divides streamed output. Each Push re-scans the
// accumulated text and returns only the content and reasoning grown since
// the previous call; a trailing fragment that could still become a tag is
// withheld until the next Push settles it, or Flush releases it.
type Splitter struct {
	tags         Tags
	raw          strings.Builder
	contentLen   int
	reasoningLen int
}

// NewSplitter returns a Splitter over the given tag pair.
func NewSplitter(tags Tags) *Splitter {
	return &Splitter{tags: tags}
}

// Push appends one streamed fragment and returns the new content and
// reasoning deltas, either of which may be empty.
func (s *Splitter) Push(delta string) (contentDelta, reasoningDelta string) {
	if delta == "" {
		return "", ""
	}
	if s.tags.Open == "" {
		s.tags = ThinkTags
	}
	s.raw.WriteString(delta)
	return s.emit(s.tags.splitStream(s.raw.String()))
}

// Flush returns whatever the last Push withheld as a possible partial tag.
// Call it once the stream is complete; the held bytes were ordinary text.
func (s *Splitter) Flush() (contentDelta, reasoningDelta string) {
	if s.tags.Open == "" {
		s.tags = ThinkTags
	}
	return s.emit(s.tags.Split(s.raw.String()))
}

func (s *Splitter) emit(out Split) (contentDelta, reasoningDelta string) {
	if s.contentLen < len(out.Content) {
		contentDelta = out.Content[s.contentLen:]
		s.contentLen = len(out.Content)
	}
	if s.reasoningLen < len(out.Reasoning) {
		reasoningDelta = out.Reasoning[s.reasoningLen:]
		s.reasoningLen = len(out.Reasoning)
	}
	return contentDelta, reasoningDelta
}
