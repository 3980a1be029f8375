package game

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/hectorgimenez/koolaunch/internal/utils"
)

// Addon is a helper program attached to the game for the session.
type Addon struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Args    []string `yaml:"args"`
	Enabled bool     `yaml:"enabled"`
}

type AddonHandle struct {
	Name string
	PID  int

	process *os.Process
	done    chan struct{}
}

func (a *AddonHandle) Running() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

// terminate asks the helper to exit and kills it once grace elapses.
func (a *AddonHandle) terminate(grace time.Duration) error {
	if !a.Running() {
		return nil
	}
	if err := utils.GracefulTerminate(a.process); err != nil {
		return a.process.Kill()
	}

	select {
	case <-a.done:
		return nil
	case <-time.After(grace):
		if err := a.process.Kill(); err != nil {
			return fmt.Errorf("error killing addon %s: %w", a.Name, err)
		}
		<-a.done
		return nil
	}
}

type AddonStarter interface {
	Start(ctx context.Context, addon Addon, gamePID int) (*AddonHandle, error)
}

// ExecAddonStarter runs addons as plain child processes. The game pid is passed
// in KOOLAUNCH_GAME_PID.
type ExecAddonStarter struct {
	logger *slog.Logger
}

func NewExecAddonStarter(logger *slog.Logger) *ExecAddonStarter {
	return &ExecAddonStarter{logger: logger}
}

func (s *ExecAddonStarter) Start(_ context.Context, addon Addon, gamePID int) (*AddonHandle, error) {
	cmd := exec.Command(addon.Path, addon.Args...)
	hideWindow(cmd)
	cmd.Env = append(os.Environ(), "KOOLAUNCH_GAME_PID="+strconv.Itoa(gamePID))

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &AddonHandle{Name: addon.Name, PID: cmd.Process.Pid, process: cmd.Process, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()
	s.logger.Debug("Addon started", slog.String("addon", addon.Name), slog.Int("pid", h.PID))

	return h, nil
}
