package game

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hectorgimenez/koolaunch/internal/utils"
	"golang.org/x/sync/errgroup"
)

const AddonTeardownGrace = 3 * time.Second

type Manager struct {
	logger   *slog.Logger
	launcher ProcessLauncher
	starter  AddonStarter
	grace    time.Duration
}

func NewManager(logger *slog.Logger, launcher ProcessLauncher, starter AddonStarter) *Manager {
	return &Manager{
		logger:   logger,
		launcher: launcher,
		starter:  starter,
		grace:    AddonTeardownGrace,
	}
}

func (m *Manager) Launch(ctx context.Context, req LaunchRequest) (*Handle, error) {
	h, err := m.launcher.Launch(ctx, req)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrSpawnFailed
	}
	m.logger.Info("Game started", slog.Int("pid", h.PID))

	return h, nil
}

// SuperviseAddons starts the enabled addons and waits for the game to exit.
// When an addon fails to start the ones already started are stopped and the
// error is returned, the game keeps running. Addons still alive when the wait
// ends are always stopped.
func (m *Manager) SuperviseAddons(ctx context.Context, h *Handle, addons []Addon) (int, error) {
	var started []*AddonHandle
	for _, addon := range addons {
		if !addon.Enabled {
			continue
		}

		ah, err := m.starter.Start(ctx, addon, h.PID)
		if err != nil {
			m.teardown(started)
			return -1, fmt.Errorf("error starting addon %s: %w", addon.Name, err)
		}
		started = append(started, ah)
	}
	defer m.teardown(started)

	exitCode, err := h.Wait(ctx)
	if err != nil {
		return exitCode, err
	}
	m.logger.Info("Game exited", slog.Int("pid", h.PID), slog.Int("exit_code", exitCode))

	return exitCode, nil
}

func (m *Manager) teardown(addons []*AddonHandle) {
	var g errgroup.Group
	for _, a := range addons {
		g.Go(func() error {
			return a.terminate(m.grace)
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("Error stopping addon", slog.Any("error", err))
	}
}

// IsRunning reports whether a process running the game executable exists.
func IsRunning(gamePath string) bool {
	pids, err := utils.FindProcessesByName(filepath.Base(gamePath))

	return err == nil && len(pids) > 0
}
