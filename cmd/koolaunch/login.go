package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	sloggger "github.com/hectorgimenez/koolaunch/cmd/koolaunch/log"
	"github.com/hectorgimenez/koolaunch/internal/bridge"
	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/hectorgimenez/koolaunch/internal/event"
	"github.com/hectorgimenez/koolaunch/internal/notify"
	"github.com/hectorgimenez/koolaunch/internal/secrets"
	"github.com/hectorgimenez/koolaunch/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newLoginCommand() *cobra.Command {
	var (
		account      string
		action       string
		savePassword bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and launch the game, or repair/check it",
		Long: `Runs one login attempt for the account.

Actions:
  launch          log in, patch and launch (default)
  repair          log in and install pending patches only
  check           log in and report the version state
  no-runtime      launch without the plugin runtime
  no-plugins      launch with the runtime but no plugins
  no-thirdparty   launch with first party plugins only`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := session.ParseAction(action)
			if err != nil {
				return err
			}
			return runLogin(cmd.Context(), account, a, savePassword)
		},
	}
	cmd.Flags().StringVarP(&account, "account", "a", "", "Account name under config/accounts")
	cmd.Flags().StringVar(&action, "action", "launch", "Login action")
	cmd.Flags().BoolVar(&savePassword, "save-password", false, "Store the password in the secret store")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func runLogin(ctx context.Context, account string, action session.Action, savePassword bool) error {
	acc, found := config.GetAccount(account)
	if !found {
		return fmt.Errorf("account %q not found", account)
	}
	cfg := config.Snapshot()

	store, err := openSecrets(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	password, err := accountPassword(ctx, store, account, savePassword)
	if err != nil {
		return err
	}

	gen := newOTPGenerator()
	defer gen.Reset()
	if acc.OTPEnabled && acc.AutoFillOTP {
		if _, err := gen.Configure(ctx, account, store); err != nil {
			logger.Warn("Could not load the one-time code secret", slog.Any("error", err))
		}
	}

	status := notify.NewStatusBoard()
	listener := event.NewListener(logger)
	listener.Register(status.Handle)
	bots := remoteBots(cfg, listener, status)

	client := bridgeClient(cfg)
	orchestrator := session.NewOrchestrator(logger, session.Dependencies{
		Auth:       bridge.NewAuthAPI(client),
		Injector:   bridge.NewInjector(client),
		NewCaptcha: captchaFactory{opts: captchaOptions(cfg)}.service,
		Codes:      gen,
		Prompter:   terminalPrompter{},
		Patcher:    patchSupervisor(cfg, client),
		Games:      gameManager(cfg),
		EnvBuilder: envBuilder(cfg),
		Notifier:   newNotifier(),
	}, session.WithExit(func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		listener.Flush(flushCtx)
		_ = sloggger.FlushAndClose()
	}, os.Exit))

	sc := session.Context{
		Account: account,
		Credentials: session.Credentials{
			Username:   acc.Username,
			Password:   password,
			OTPEnabled: acc.OTPEnabled,
		},
		Settings: sessionSettings(cfg, acc),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(wrapWithRecover(logger, func() error {
		return listener.Listen(ctx)
	}))
	for _, run := range bots {
		g.Go(wrapWithRecover(logger, func() error {
			if err := run(ctx); err != nil {
				logger.Error("Remote integration stopped", slog.Any("error", err))
			}
			return nil
		}))
	}

	var outcome session.Outcome
	g.Go(wrapWithRecover(logger, func() error {
		defer cancel()
		var err error
		outcome, err = orchestrator.Login(ctx, sc, action)
		return err
	}))

	err = g.Wait()
	logger.Info("Login attempt finished", slog.String("outcome", outcome.String()))

	return err
}

func accountPassword(ctx context.Context, store secrets.Store, account string, save bool) (string, error) {
	password, found, err := store.Get(ctx, secrets.PasswordKey(account))
	if err != nil {
		return "", fmt.Errorf("error reading stored password: %w", err)
	}
	if found && password != "" && !save {
		return password, nil
	}

	password, err = readPassword(fmt.Sprintf("Password for %s: ", account))
	if err != nil {
		return "", err
	}
	if save {
		if err := store.Set(ctx, secrets.PasswordKey(account), password); err != nil {
			return "", fmt.Errorf("error storing password: %w", err)
		}
	}

	return password, nil
}
