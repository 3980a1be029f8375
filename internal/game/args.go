package game

import (
	"errors"
	"fmt"

	"github.com/mattn/go-shellwords"
)

var errInvalidArgs = errors.New("invalid launch arguments")

// splitArgs splits s into arguments with shell-like quoting. Environment
// expansion and command substitution are disabled; shell operators such as
// ';' or '|' are rejected instead of silently cutting the line.
func splitArgs(s string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false

	args, err := p.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidArgs, err)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("%w: unsupported shell operator at %d in %q", errInvalidArgs, p.Position, s)
	}

	return args, nil
}
