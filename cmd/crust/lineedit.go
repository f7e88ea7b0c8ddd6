package main

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// lineEditor reads REPL input lines. On a Linux terminal it provides raw-mode
// editing with cursor movement, word operations and history recall; elsewhere
// (and on piped stdin) it falls back to plain buffered reads.
type lineEditor struct {
	history []string
}

func newLineEditor() *lineEditor {
	return &lineEditor{}
}

// remember appends a line to the recall history, skipping blanks and
// immediate duplicates.
func (e *lineEditor) remember(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if n := len(e.history); n > 0 && e.history[n-1] == line {
		return
	}
	e.history = append(e.history, line)
}

// readPlainLine reads one newline-terminated line from stdin. io.EOF is
// returned only when the stream is exhausted with no pending text.
func (e *lineEditor) readPlainLine() (string, error) {
	r := bufio.NewReader(os.Stdin)
	s, err := r.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", err
		}
		if s == "" {
			return "", io.EOF
		}
	}
	return trimTrailingNewline(s), nil
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
