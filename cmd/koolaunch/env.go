package main

import (
	"fmt"

	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/spf13/cobra"
)

func newEnvCommand() *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "env [launch string]",
		Short: "Show the environment and arguments a launch string produces",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Snapshot()

			raw := cfg.AdditionalLaunchArgs
			if account != "" {
				acc, err := requireAccount(account)
				if err != nil {
					return err
				}
				if acc.LaunchArgs != "" {
					raw = acc.LaunchArgs
				}
			}
			if len(args) == 1 {
				raw = args[0]
			}

			env := envBuilder(cfg).Build(raw)
			out := cmd.OutOrStdout()
			for _, a := range env.Env {
				if a.Unset {
					fmt.Fprintf(out, "unset %s\n", a.Key)
					continue
				}
				fmt.Fprintf(out, "%s=%s\n", a.Key, a.Value)
			}
			fmt.Fprintf(out, "args: %s\n", env.Args)
			return nil
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "Use the launch string of this account")

	return cmd
}
