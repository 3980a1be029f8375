package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var ErrNoResult = errors.New("helper exited without a result")

// Client talks to the collaborator helper executable. Every call spawns a new
// helper process, writes one request to its stdin and reads a CBOR sequence of
// frames from its stdout until a result or error frame arrives.
type Client struct {
	logger  *slog.Logger
	path    string
	args    []string
	command func(ctx context.Context, path string, args ...string) *exec.Cmd
}

type Option func(*Client)

// WithCommand overrides how the helper process is built.
func WithCommand(fn func(ctx context.Context, path string, args ...string) *exec.Cmd) Option {
	return func(c *Client) { c.command = fn }
}

func NewClient(logger *slog.Logger, path string, args []string, opts ...Option) *Client {
	c := &Client{
		logger:  logger,
		path:    path,
		args:    args,
		command: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// call sends op and decodes the result into out. onFrame receives progress and
// failed frames in order.
func (c *Client) call(ctx context.Context, op string, payload any, out any, onFrame func(frame)) error {
	req := request{Op: op}
	if payload != nil {
		raw, err := marshal(payload)
		if err != nil {
			return fmt.Errorf("error encoding %s request: %w", op, err)
		}
		req.Payload = raw
	}

	cmd := c.command(ctx, c.path, c.args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting helper %s: %w", c.path, err)
	}

	if err := newEncoder(stdin).Encode(req); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("error sending %s request: %w", op, err)
	}
	_ = stdin.Close()

	result, readErr := c.readFrames(stdout, onFrame)
	// drain so the helper never blocks on a full pipe
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		if waitErr != nil {
			return fmt.Errorf("%s: %w (%s)", op, readErr, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%s: %w", op, readErr)
	}
	if waitErr != nil {
		c.logger.Debug("Helper exited with error after result", slog.String("op", op), slog.Any("error", waitErr))
	}

	if out != nil && len(result) > 0 {
		if err := unmarshal(result, out); err != nil {
			return fmt.Errorf("error decoding %s result: %w", op, err)
		}
	}

	return nil
}

func (c *Client) readFrames(r io.Reader, onFrame func(frame)) (cbor.RawMessage, error) {
	dec := newDecoder(r)
	for {
		var f frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNoResult
			}
			return nil, fmt.Errorf("error decoding helper frame: %w", err)
		}

		switch f.Kind {
		case frameResult:
			return f.Result, nil
		case frameError:
			if f.Error == nil {
				return nil, &RemoteError{Code: "unknown"}
			}
			return nil, f.Error
		case frameProgress, frameFailed:
			if onFrame != nil {
				onFrame(f)
			}
		default:
			c.logger.Debug("Ignoring unknown helper frame", slog.String("kind", f.Kind))
		}
	}
}
