package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	sloggger "github.com/hectorgimenez/koolaunch/cmd/koolaunch/log"
	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/hectorgimenez/koolaunch/internal/utils"
	"github.com/spf13/cobra"
)

var (
	buildID   string
	buildTime string
)

// logger is set by the root command before any subcommand runs.
var logger *slog.Logger

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				stackTrace := debug.Stack()
				logger.Error(fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, stackTrace))
				sloggger.FlushLog()
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return f()
	}
}

func newRootCommand() *cobra.Command {
	var baseDir string

	rootCmd := &cobra.Command{
		Use:           "koolaunch",
		Short:         "Log in, patch and launch the game client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if baseDir != "" {
				config.BaseDir = baseDir
			}
			if err := config.Load(); err != nil {
				return fmt.Errorf("error loading configuration: %w", err)
			}

			cfg := config.Snapshot()
			l, err := sloggger.NewLogger(cfg.Debug.Log, cfg.LogSaveDirectory, "")
			if err != nil {
				return fmt.Errorf("error starting logger: %w", err)
			}
			logger = l
			logger.Debug("Starting", slog.String("version", config.Version), slog.String("build", buildID), slog.String("buildTime", buildTime))

			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", "", "Directory holding config/ (defaults to the working directory)")

	rootCmd.AddCommand(
		newLoginCommand(),
		newOTPCommand(),
		newCaptchaCommand(),
		newEnvCommand(),
		newAccountCommand(),
		newConfigCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	if logger != nil {
		_ = sloggger.FlushAndClose()
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	var fatal *fatalError
	if errors.As(err, &fatal) {
		utils.ShowDialog("Koolaunch error :(", err.Error())
	}
	stdlog.Fatalf("Error: %s", err.Error())
}

// fatalError marks errors that deserve a dialog on top of the console output.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
