package main

import (
	"fmt"
	"log/slog"

	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the launcher configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "game-path [path]",
		Short: "Set the game executable, opens a file dialog when no path is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				var err error
				if path, err = browseGamePath(); err != nil {
					return err
				}
				if path == "" {
					return nil
				}
			}

			cfg := config.Snapshot()
			cfg.GamePath = path
			if err := config.ValidateAndSaveConfig(cfg); err != nil {
				return &fatalError{err: err}
			}
			logger.Info("Game path updated", slog.String("path", path))
			fmt.Fprintf(cmd.OutOrStdout(), "gamePath set to %s\n", path)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets hidden",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Snapshot()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gamePath:      %s\n", cfg.GamePath)
			fmt.Fprintf(out, "patchPath:     %s\n", cfg.PatchPath)
			fmt.Fprintf(out, "runner:        %s\n", cfg.Runner)
			fmt.Fprintf(out, "runtimePath:   %s\n", cfg.RuntimePath)
			fmt.Fprintf(out, "dpiMode:       %s\n", cfg.DPIMode)
			fmt.Fprintf(out, "captcha:       %s\n", cfg.Captcha.Mode)
			fmt.Fprintf(out, "bridge:        %s\n", cfg.Bridge.Path)
			fmt.Fprintf(out, "secrets:       %s\n", cfg.Secrets.Backend)
			fmt.Fprintf(out, "addons:        %d\n", len(cfg.Addons))
			fmt.Fprintf(out, "discord:       %t\n", cfg.Discord.Enabled)
			fmt.Fprintf(out, "telegram:      %t\n", cfg.Telegram.Enabled)
			return nil
		},
	})

	return configCmd
}
