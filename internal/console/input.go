package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// LineReader reads one line of user input. io.EOF ends the session.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// Terminal is a LineReader with line editing and history.
type Terminal struct {
	line *liner.State
}

// NewTerminal takes over the controlling terminal until Close.
func NewTerminal() *Terminal {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &Terminal{line: line}
}

// ReadLine prompts for a line. Ctrl-C and Ctrl-D at the prompt both end
// input with io.EOF.
func (t *Terminal) ReadLine(prompt string) (string, error) {
	input, err := t.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		t.line.AppendHistory(input)
	}
	return input, nil
}

func (t *Terminal) Close() error {
	return t.line.Close()
}

// Scanner reads lines from a plain reader, echoing prompts to out.
type Scanner struct {
	sc  *bufio.Scanner
	out io.Writer
}

// NewScanner wraps r. Prompts are written to out when it is non-nil.
func NewScanner(r io.Reader, out io.Writer) *Scanner {
	return &Scanner{sc: bufio.NewScanner(r), out: out}
}

func (s *Scanner) ReadLine(prompt string) (string, error) {
	if s.out != nil {
		fmt.Fprint(s.out, prompt)
	}
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

func (s *Scanner) Close() error { return nil }
