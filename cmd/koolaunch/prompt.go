package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var errNotInteractive = errors.New("no terminal available to prompt")

// terminalPrompter reads one-time codes from stdin.
type terminalPrompter struct{}

func (terminalPrompter) PromptOTP(ctx context.Context, account string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errNotInteractive
	}

	fmt.Printf("One-time code for %s (empty to cancel): ", account)

	type result struct {
		line string
		err  error
	}
	lines := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		lines <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-lines:
		if r.err != nil && r.line == "" {
			return "", nil
		}
		return strings.TrimSpace(r.line), nil
	}
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNotInteractive
	}

	fmt.Print(prompt)
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}

	return string(b), nil
}
