package main

import (
	"fmt"

	"github.com/hectorgimenez/koolaunch/internal/captcha"
	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/spf13/cobra"
)

func newCaptchaCommand() *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "captcha",
		Short: "Run the verification challenge once and print whether a token was obtained",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := captchaOptions(config.Snapshot())
			if cmd.Flags().Changed("headless") {
				opts.Headless = headless
			}

			token, ok := captcha.NewService(logger, opts).AcquireToken(cmd.Context())
			if !ok {
				return fmt.Errorf("no verification token obtained")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token obtained (%d bytes)\n", len(token))
			return nil
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser without a window")

	return cmd
}
