package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when the user submits an empty answer or input is closed.
var ErrNoInput = errors.New("no input provided")

// Prompter reads answers from a terminal. When the input is not a terminal, answers are
// read line by line, which keeps piping a passphrase into the CLI possible.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm func(fd int) bool
	readPw func(fd int) ([]byte, error)
}

// New returns a Prompter bound to stdin and stderr.
func New() *Prompter {
	return NewWithIO(os.Stdin, os.Stderr)
}

func NewWithIO(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{
		in:     bufio.NewReader(in),
		out:    out,
		fd:     -1,
		isTerm: term.IsTerminal,
		readPw: term.ReadPassword,
	}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
	}
	return p
}

// PromptHidden asks for a secret without echoing it.
func (p *Prompter) PromptHidden(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)

	var (
		answer string
		err    error
	)
	if p.fd >= 0 && p.isTerm(p.fd) {
		var b []byte
		b, err = p.readPw(p.fd)
		fmt.Fprintln(p.out)
		answer = string(b)
	} else {
		answer, err = p.readLine()
	}
	if err != nil {
		return "", err
	}

	answer = strings.TrimRight(answer, "\r\n")
	if strings.TrimSpace(answer) == "" {
		return "", ErrNoInput
	}
	return answer, nil
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *Prompter) Confirm(question string) (bool, error) {
	fmt.Fprintf(p.out, "%s [y/N]: ", question)

	answer, err := p.readLine()
	if err != nil {
		if errors.Is(err, ErrNoInput) {
			return false, nil
		}
		return false, err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return "", ErrNoInput
			}
			return line, nil
		}
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return line, nil
}
