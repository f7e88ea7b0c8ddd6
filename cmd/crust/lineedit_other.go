//go:build !linux

package main

import "fmt"

// ReadLine reads one line with no raw-mode editing.
func (e *lineEditor) ReadLine(prompt string) (string, error) {
	if stdinIsTTY() {
		fmt.Print(prompt)
	}
	line, err := e.readPlainLine()
	if err != nil {
		return "", err
	}
	e.remember(line)
	return line, nil
}
