package main

import (
	"bufio"
	"io"
	"strings"
)

// StreamMode selects how reply fragments reach the terminal.
type StreamMode string

const (
	// StreamInstant writes each fragment as it arrives.
	StreamInstant StreamMode = "instant"
	// StreamTypewriter writes rune by rune for a steadier cadence.
	StreamTypewriter StreamMode = "typewriter"
	// StreamQuiet holds everything back until Finish.
	StreamQuiet StreamMode = "quiet"
)

// ParseStreamMode maps a mode name to its StreamMode, defaulting to instant
// for unknown names.
func ParseStreamMode(name string) StreamMode {
	switch StreamMode(strings.ToLower(strings.TrimSpace(name))) {
	case StreamTypewriter:
		return StreamTypewriter
	case StreamQuiet:
		return StreamQuiet
	default:
		return StreamInstant
	}
}

const (
	dimOn  = "\033[2m"
	dimOff = "\033[0m"
)

// StreamWriter renders one generation's fragments. It accumulates the
// visible reply so quiet mode can print it whole and callers can reuse it
// after Finish. Not safe for concurrent use; the generation loop delivers
// fragments sequentially.
type StreamWriter struct {
	mode StreamMode
	out  *bufio.Writer
	dim  bool
	acc  strings.Builder
}

// NewStreamWriter creates a writer for one reply in the given mode.
func NewStreamWriter(mode StreamMode, w io.Writer) *StreamWriter {
	return &StreamWriter{
		mode: mode,
		out:  bufio.NewWriterSize(w, 4096),
	}
}

// Write renders one reply fragment.
func (w *StreamWriter) Write(fragment string) {
	if fragment == "" {
		return
	}
	w.acc.WriteString(fragment)
	if w.mode == StreamQuiet {
		return
	}
	w.setDim(false)
	w.emit(fragment)
}

// Thinking renders a reasoning fragment dimmed. Quiet mode drops it: the
// final answer is the only output.
func (w *StreamWriter) Thinking(fragment string) {
	if fragment == "" || w.mode == StreamQuiet {
		return
	}
	w.setDim(true)
	w.emit(fragment)
}

// Finish flushes pending output (printing the whole reply in quiet mode)
// and returns the accumulated visible text.
func (w *StreamWriter) Finish() string {
	w.setDim(false)
	if w.mode == StreamQuiet {
		_, _ = w.out.WriteString(w.acc.String())
	}
	_ = w.out.Flush()
	return w.acc.String()
}

func (w *StreamWriter) emit(text string) {
	switch w.mode {
	case StreamTypewriter:
		for _, r := range text {
			_, _ = w.out.WriteRune(r)
			_ = w.out.Flush()
		}
	default:
		_, _ = w.out.WriteString(text)
		_ = w.out.Flush()
	}
}

func (w *StreamWriter) setDim(on bool) {
	if w.dim == on {
		return
	}
	w.dim = on
	if on {
		_, _ = w.out.WriteString(dimOn)
	} else {
		_, _ = w.out.WriteString(dimOff)
	}
}
