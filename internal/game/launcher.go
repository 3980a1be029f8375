package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hectorgimenez/koolaunch/internal/launchenv"
)

var ErrSpawnFailed = errors.New("game process could not be spawned")

type Runner string

const (
	RunnerNative  Runner = "native"
	RunnerWine    Runner = "wine"
	RunnerWrapper Runner = "wrapper"
)

type DPIMode string

const (
	DPIModeDefault     DPIMode = ""
	DPIModeAware       DPIMode = "aware"
	DPIModeUnaware     DPIMode = "unaware"
	DPIModeGDIScaling  DPIMode = "gdi-scaling"
	compatLayerEnvName         = "__COMPAT_LAYER"
)

// compatLayer is the windows compatibility layer value for the DPI mode.
func (m DPIMode) compatLayer() string {
	switch m {
	case DPIModeAware:
		return "HighDpiAware"
	case DPIModeUnaware:
		return "DpiUnaware"
	case DPIModeGDIScaling:
		return "GdiDpiScaling DpiUnaware"
	default:
		return ""
	}
}

type LaunchRequest struct {
	Runner    Runner
	SessionID string
	GamePath  string
	DPIMode   DPIMode
	// ExtraArgs are user arguments, split with shell-like quoting.
	ExtraArgs string
	Env       launchenv.Environment
}

// ProcessLauncher spawns the game. A nil handle without error is treated as a
// spawn failure.
type ProcessLauncher interface {
	Launch(ctx context.Context, req LaunchRequest) (*Handle, error)
}

type ExecLauncher struct {
	logger *slog.Logger
	// RuntimePath is the wine installation used by RunnerWine.
	RuntimePath string
	// Wrapper is the command line prefix used by RunnerWrapper, e.g. "gamemoderun".
	Wrapper string
	// SessionArgFormat renders the session argument, "--session-id=%s" by default.
	SessionArgFormat string
	baseEnv          func() []string
}

func NewExecLauncher(logger *slog.Logger, runtimePath, wrapper, sessionArgFormat string) *ExecLauncher {
	if sessionArgFormat == "" {
		sessionArgFormat = "--session-id=%s"
	}

	return &ExecLauncher{
		logger:           logger,
		RuntimePath:      runtimePath,
		Wrapper:          wrapper,
		SessionArgFormat: sessionArgFormat,
		baseEnv:          os.Environ,
	}
}

func (l *ExecLauncher) Launch(ctx context.Context, req LaunchRequest) (*Handle, error) {
	argv, err := l.argv(req)
	if err != nil {
		return nil, err
	}

	env := req.Env
	if layer := req.DPIMode.compatLayer(); layer != "" {
		env.Env = append(append([]launchenv.Assignment(nil), env.Env...), launchenv.Assignment{Key: compatLayerEnvName, Value: layer})
	}

	// The game must outlive the launch attempt, so ctx is not bound to the process.
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(req.GamePath)
	cmd.Env = env.Environ(l.baseEnv())

	l.logger.Info("Starting game",
		slog.String("runner", string(req.Runner)),
		slog.String("path", req.GamePath),
		slog.String("dpi_mode", string(req.DPIMode)),
	)

	h, err := startHandle(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailed, err)
	}

	return h, nil
}

func (l *ExecLauncher) argv(req LaunchRequest) ([]string, error) {
	extra, err := splitArgs(req.ExtraArgs)
	if err != nil {
		return nil, err
	}
	envArgs, err := splitArgs(req.Env.Args)
	if err != nil {
		return nil, err
	}

	game := []string{req.GamePath}
	if req.SessionID != "" {
		game = append(game, fmt.Sprintf(l.SessionArgFormat, req.SessionID))
	}
	game = append(game, envArgs...)
	game = append(game, extra...)

	switch req.Runner {
	case RunnerWine:
		return append([]string{wineBinary(l.RuntimePath)}, game...), nil
	case RunnerWrapper:
		wrapper, err := splitArgs(l.Wrapper)
		if err != nil {
			return nil, err
		}
		if len(wrapper) == 0 {
			return nil, fmt.Errorf("%w: wrapper runner selected without a wrapper command", ErrSpawnFailed)
		}
		return append(wrapper, game...), nil
	default:
		return game, nil
	}
}

func wineBinary(runtimePath string) string {
	if runtimePath == "" {
		return "wine64"
	}
	for _, name := range []string{"wine64", "wine"} {
		candidate := filepath.Join(runtimePath, "bin", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return filepath.Join(runtimePath, "bin", "wine64")
}
