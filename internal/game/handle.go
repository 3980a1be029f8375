package game

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
)

// Handle tracks a spawned game process until it exits.
type Handle struct {
	PID int

	process  *os.Process
	done     chan struct{}
	exitCode atomic.Int64
	waitErr  error
}

func startHandle(cmd *exec.Cmd) (*Handle, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{PID: cmd.Process.Pid, process: cmd.Process, done: make(chan struct{})}
	h.exitCode.Store(-1)
	go func() {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			h.exitCode.Store(0)
		case errors.As(err, &exitErr):
			h.exitCode.Store(int64(exitErr.ExitCode()))
		default:
			h.waitErr = err
		}
		close(h.done)
	}()

	return h, nil
}

func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits or ctx is done. The process is left
// running when ctx ends first.
func (h *Handle) Wait(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-h.done:
		return int(h.exitCode.Load()), h.waitErr
	}
}

// ExitCode is -1 while the process is running.
func (h *Handle) ExitCode() int {
	return int(h.exitCode.Load())
}

// Kill terminates the process immediately.
func (h *Handle) Kill() error {
	if !h.Running() {
		return nil
	}

	return h.process.Kill()
}
