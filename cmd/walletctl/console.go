package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

// console reads lines and secrets from the user and prints alerts. It is
// the shell's PIN prompter and notifier.
type console struct {
	in  *bufio.Scanner
	out io.Writer
	fd  int // terminal descriptor for secret input, -1 if none
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{in: bufio.NewScanner(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.fd = int(f.Fd())
	}
	return c
}

// readLine prints prompt and returns the next trimmed input line.
func (c *console) readLine(prompt string) (string, bool) {
	fmt.Fprint(c.out, prompt)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// readSecret reads a line without echo when attached to a terminal.
func (c *console) readSecret(prompt string) (string, bool) {
	if c.fd < 0 {
		return c.readLine(prompt)
	}
	fmt.Fprint(c.out, prompt)
	b, err := term.ReadPassword(c.fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(b)), true
}

func (c *console) PromptPin(ctx context.Context, reason string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pin, ok := c.readSecret(reason + ": ")
	if !ok || pin == "" {
		return "", domain.ErrPromptCancelled
	}
	return pin, nil
}

func (c *console) Alert(message string) {
	fmt.Fprintf(c.out, "! %s\n", message)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
