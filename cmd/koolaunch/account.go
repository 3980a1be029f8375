package main

import (
	"fmt"
	"sort"

	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/spf13/cobra"
)

func newAccountCommand() *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage login profiles",
	}

	accountCmd.AddCommand(&cobra.Command{
		Use:   "new <name>",
		Short: "Create an account from the template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateAccountFromTemplate(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created, edit config/accounts/%s/account.yaml\n", args[0], args[0])
			return nil
		},
	})

	accountCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts := config.GetAccounts()
			names := make([]string, 0, len(accounts))
			for name := range accounts {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				acc := accounts[name]
				otpMode := "off"
				switch {
				case acc.OTPEnabled && acc.AutoFillOTP:
					otpMode = "auto"
				case acc.OTPEnabled:
					otpMode = "prompt"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-30s otp=%s\n", name, acc.Username, otpMode)
			}
			return nil
		},
	})

	return accountCmd
}
