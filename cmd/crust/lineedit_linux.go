//go:build linux

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// ReadLine reads one line with raw-mode editing when stdin is a terminal.
// Ctrl+D on an empty line and Ctrl+C both return io.EOF.
func (e *lineEditor) ReadLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		return e.readPlainLine()
	}

	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	// ISIG is cleared so Ctrl+C arrives as a byte while editing; generation
	// runs in cooked mode where it raises SIGINT as usual.
	rawState := *oldState
	rawState.Lflag &^= unix.ICANON | unix.ECHO | unix.ISIG
	rawState.Cc[unix.VMIN] = 1
	rawState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &rawState); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, oldState)
	}()

	st := &rawEdit{prompt: prompt, history: e.history, histPos: len(e.history)}
	fmt.Print(prompt)

	line, err := st.loop()
	if err != nil {
		return "", err
	}
	e.remember(line)
	return line, nil
}

// rawEdit is the state of one raw-mode line read.
type rawEdit struct {
	prompt   string
	line     []byte
	cursor   int
	history  []string
	histPos  int
	browsing bool
	draft    string
}

func (st *rawEdit) loop() (string, error) {
	var buf [16]byte
	escState := 0
	var escBuf strings.Builder

	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for i := 0; i < n; i++ {
			b := buf[i]
			if escState != 0 {
				switch escState {
				case 1:
					switch {
					case b == '[':
						escState = 2
						escBuf.Reset()
					case b == 'b' || b == 'B':
						st.moveWordLeft() // Alt+b
						escState = 0
					case b == 'f' || b == 'F':
						st.moveWordRight() // Alt+f
						escState = 0
					case b == 127:
						st.deleteWordBack() // Alt+Backspace
						escState = 0
					default:
						escState = 0
					}
				case 2:
					escBuf.WriteByte(b)
					if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
						st.handleCSI(escBuf.String())
						escState = 0
					}
				}
				continue
			}

			switch b {
			case 27: // ESC
				escState = 1
			case '\r', '\n':
				fmt.Print("\r\n")
				return string(st.line), nil
			case 3: // Ctrl+C
				fmt.Print("^C\r\n")
				return "", io.EOF
			case 4: // Ctrl+D
				if len(st.line) == 0 {
					fmt.Print("\r\n")
					return "", io.EOF
				}
			case 127, 8: // Backspace
				if st.cursor > 0 {
					st.line = append(st.line[:st.cursor-1], st.line[st.cursor:]...)
					st.cursor--
					st.redraw()
				}
			case 1: // Ctrl+A
				st.cursor = 0
				st.redraw()
			case 5: // Ctrl+E
				st.cursor = len(st.line)
				st.redraw()
			case 11: // Ctrl+K
				st.line = st.line[:st.cursor]
				st.redraw()
			case 21: // Ctrl+U
				st.line = append(st.line[:0], st.line[st.cursor:]...)
				st.cursor = 0
				st.redraw()
			case 23: // Ctrl+W
				st.deleteWordBack()
			default:
				if b >= 32 {
					st.insert(b)
				}
			}
		}
	}
}

func (st *rawEdit) insert(b byte) {
	if st.cursor == len(st.line) {
		st.line = append(st.line, b)
	} else {
		st.line = append(st.line, 0)
		copy(st.line[st.cursor+1:], st.line[st.cursor:])
		st.line[st.cursor] = b
	}
	st.cursor++
	st.redraw()
}

func (st *rawEdit) redraw() {
	fmt.Printf("\r%s%s", st.prompt, string(st.line))
	fmt.Print("\x1b[K")
	if st.cursor < len(st.line) {
		fmt.Printf("\r%s%s", st.prompt, string(st.line[:st.cursor]))
	}
}

func (st *rawEdit) handleCSI(seq string) {
	switch seq {
	case "A": // up: recall older history
		if len(st.history) == 0 {
			return
		}
		if !st.browsing {
			st.draft = string(st.line)
			st.browsing = true
			st.histPos = len(st.history)
		}
		if st.histPos > 0 {
			st.histPos--
			st.line = append(st.line[:0], st.history[st.histPos]...)
			st.cursor = len(st.line)
			st.redraw()
		}
	case "B": // down: back toward the draft
		if !st.browsing {
			return
		}
		if st.histPos < len(st.history)-1 {
			st.histPos++
			st.line = append(st.line[:0], st.history[st.histPos]...)
		} else {
			st.histPos = len(st.history)
			st.line = append(st.line[:0], st.draft...)
			st.browsing = false
		}
		st.cursor = len(st.line)
		st.redraw()
	case "D": // left
		if st.cursor > 0 {
			st.cursor--
			st.redraw()
		}
	case "C": // right
		if st.cursor < len(st.line) {
			st.cursor++
			st.redraw()
		}
	case "H": // home
		st.cursor = 0
		st.redraw()
	case "F": // end
		st.cursor = len(st.line)
		st.redraw()
	case "3~": // delete
		if st.cursor < len(st.line) {
			st.line = append(st.line[:st.cursor], st.line[st.cursor+1:]...)
			st.redraw()
		}
	case "1;5D", "5D": // Ctrl+Left
		st.moveWordLeft()
	case "1;5C", "5C": // Ctrl+Right
		st.moveWordRight()
	case "3;5~": // Ctrl+Delete
		st.deleteWordForward()
	}
}

func isWordSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func (st *rawEdit) moveWordLeft() {
	if st.cursor == 0 {
		return
	}
	for st.cursor > 0 && isWordSpace(st.line[st.cursor-1]) {
		st.cursor--
	}
	for st.cursor > 0 && !isWordSpace(st.line[st.cursor-1]) {
		st.cursor--
	}
	st.redraw()
}

func (st *rawEdit) moveWordRight() {
	if st.cursor >= len(st.line) {
		return
	}
	for st.cursor < len(st.line) && isWordSpace(st.line[st.cursor]) {
		st.cursor++
	}
	for st.cursor < len(st.line) && !isWordSpace(st.line[st.cursor]) {
		st.cursor++
	}
	st.redraw()
}

func (st *rawEdit) deleteWordBack() {
	if st.cursor == 0 {
		return
	}
	start := st.cursor
	for start > 0 && isWordSpace(st.line[start-1]) {
		start--
	}
	for start > 0 && !isWordSpace(st.line[start-1]) {
		start--
	}
	st.line = append(st.line[:start], st.line[st.cursor:]...)
	st.cursor = start
	st.redraw()
}

func (st *rawEdit) deleteWordForward() {
	if st.cursor >= len(st.line) {
		return
	}
	end := st.cursor
	for end < len(st.line) && isWordSpace(st.line[end]) {
		end++
	}
	for end < len(st.line) && !isWordSpace(st.line[end]) {
		end++
	}
	st.line = append(st.line[:st.cursor], st.line[end:]...)
	st.redraw()
}
