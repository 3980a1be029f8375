package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/hectorgimenez/koolaunch/internal/otp"
	"github.com/spf13/cobra"
)

func newOTPCommand() *cobra.Command {
	otpCmd := &cobra.Command{
		Use:   "otp",
		Short: "Manage the auto-fill one-time code secret of an account",
	}

	var account string
	otpCmd.PersistentFlags().StringVarP(&account, "account", "a", "", "Account name under config/accounts")
	_ = otpCmd.MarkPersistentFlagRequired("account")

	setCmd := &cobra.Command{
		Use:   "set [secret]",
		Short: "Store the base32 secret and enable auto-fill",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc, err := requireAccount(account)
			if err != nil {
				return err
			}

			secret := ""
			if len(args) == 1 {
				secret = args[0]
			} else if secret, err = readPassword("Secret: "); err != nil {
				return err
			}

			store, err := openSecrets(cmd.Context(), config.Snapshot())
			if err != nil {
				return err
			}
			defer closeStore(store)

			gen := newOTPGenerator()
			defer gen.Reset()
			if err := gen.SetSecret(cmd.Context(), account, secret, store); err != nil {
				return err
			}

			acc.OTPEnabled = true
			acc.AutoFillOTP = true
			if err := config.SaveAccountConfig(account, acc); err != nil {
				return err
			}

			code, remaining, err := gen.Current()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret stored, current code %s (%ds)\n", code, remaining)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored secret and disable auto-fill",
		RunE: func(cmd *cobra.Command, _ []string) error {
			acc, err := requireAccount(account)
			if err != nil {
				return err
			}

			store, err := openSecrets(cmd.Context(), config.Snapshot())
			if err != nil {
				return err
			}
			defer closeStore(store)

			if err := newOTPGenerator().ClearSecret(cmd.Context(), account, store); err != nil {
				return err
			}

			acc.AutoFillOTP = false
			return config.SaveAccountConfig(account, acc)
		},
	}

	codeCmd := &cobra.Command{
		Use:   "code",
		Short: "Print the current code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := requireAccount(account); err != nil {
				return err
			}
			gen, closeFn, err := configuredGenerator(cmd, account)
			if err != nil {
				return err
			}
			defer closeFn()

			code, remaining, err := gen.Current()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", code, remaining)
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep printing the code as it refreshes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := requireAccount(account); err != nil {
				return err
			}
			gen, closeFn, err := configuredGenerator(cmd, account)
			if err != nil {
				return err
			}
			defer closeFn()

			showOTP(cmd.Context(), gen)
			return nil
		},
	}

	otpCmd.AddCommand(setCmd, clearCmd, codeCmd, watchCmd)
	return otpCmd
}

func requireAccount(name string) (*config.AccountCfg, error) {
	name = strings.TrimSpace(name)
	acc, found := config.GetAccount(name)
	if !found {
		return nil, fmt.Errorf("account %q not found", name)
	}
	return acc, nil
}

func configuredGenerator(cmd *cobra.Command, account string) (*otp.Generator, func(), error) {
	store, err := openSecrets(cmd.Context(), config.Snapshot())
	if err != nil {
		return nil, nil, err
	}

	gen := newOTPGenerator()
	ok, err := gen.Configure(cmd.Context(), account, store)
	if err == nil && !ok {
		err = errors.New("no one-time code secret stored for this account, use otp set")
	}
	if err != nil {
		closeStore(store)
		return nil, nil, err
	}

	return gen, func() {
		gen.Reset()
		closeStore(store)
	}, nil
}
