package main

import (
	"fmt"

	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the launcher version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "koolaunch %s", config.Version)
			if buildID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s, %s)", buildID, buildTime)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
