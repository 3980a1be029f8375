package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hectorgimenez/koolaunch/internal/bridge"
	"github.com/hectorgimenez/koolaunch/internal/captcha"
	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/hectorgimenez/koolaunch/internal/event"
	"github.com/hectorgimenez/koolaunch/internal/game"
	"github.com/hectorgimenez/koolaunch/internal/launchenv"
	"github.com/hectorgimenez/koolaunch/internal/notify"
	"github.com/hectorgimenez/koolaunch/internal/otp"
	"github.com/hectorgimenez/koolaunch/internal/patch"
	"github.com/hectorgimenez/koolaunch/internal/remote/discord"
	"github.com/hectorgimenez/koolaunch/internal/remote/telegram"
	"github.com/hectorgimenez/koolaunch/internal/secrets"
	"github.com/hectorgimenez/koolaunch/internal/session"
	"github.com/hectorgimenez/koolaunch/internal/utils"
	"golang.org/x/term"
)

func openSecrets(ctx context.Context, cfg config.LauncherCfg) (secrets.Store, error) {
	dir := cfg.Secrets.Dir
	if dir == "" {
		dir = filepath.Join(config.BaseDir, "config")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("error creating secrets directory: %w", err)
	}

	return secrets.Open(ctx, cfg.Secrets.Backend, dir)
}

func closeStore(store secrets.Store) {
	if c, ok := store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logger.Warn("Error closing secret store", slog.Any("error", err))
		}
	}
}

func newOTPGenerator() *otp.Generator {
	return otp.NewGenerator(logger, otp.WithTickHook(func(t otp.Tick) {
		event.Send(event.OTPTick(event.Text(t.AccountID, "One-time code refreshed"), t.Code, t.SecondsRemaining))
	}))
}

func captchaOptions(cfg config.LauncherCfg) captcha.Options {
	return captcha.Options{
		BrowserPath: cfg.Captcha.BrowserPath,
		SiteKey:     cfg.Captcha.SiteKey,
		Action:      cfg.Captcha.Action,
		Origin:      cfg.Captcha.Origin,
		Headless:    cfg.Captcha.Headless,
	}
}

type captchaFactory struct {
	opts captcha.Options
}

func (f captchaFactory) service() session.CaptchaService {
	return captcha.NewService(logger, f.opts)
}

func envBuilder(cfg config.LauncherCfg) *launchenv.Builder {
	return launchenv.NewBuilder(cfg.Compat, launchenv.WithPlaceholder(cfg.LaunchEnvPlaceholder))
}

func newNotifier() *notify.Fanout {
	var n notify.Notifier = notify.Dialog{}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		n = notify.NewConsole(os.Stdout)
	}
	return notify.NewFanout(logger, n)
}

// remoteBots builds the configured chat integrations and registers their
// handlers. The returned functions run until ctx is done.
func remoteBots(cfg config.LauncherCfg, listener *event.Listener, status *notify.StatusBoard) []func(ctx context.Context) error {
	var runners []func(ctx context.Context) error

	if cfg.Discord.Enabled {
		discordBot, err := discord.NewBot(discord.Options{
			Token:               cfg.Discord.Token,
			ChannelID:           cfg.Discord.ChannelID,
			UseWebhook:          cfg.Discord.UseWebhook,
			WebhookURL:          cfg.Discord.WebhookURL,
			BotAdmins:           cfg.Discord.BotAdmins,
			EnableStageMessages: cfg.Discord.EnableStageMessages,
			EnableErrorMessages: cfg.Discord.EnableErrorMessages,
			EnableGameExit:      cfg.Discord.EnableGameExitMessages,
			EnablePatchMessages: cfg.Discord.EnablePatchMessages,
		}, status)
		if err != nil {
			logger.Error("Discord could not been initialized", slog.Any("error", err))
		} else {
			listener.Register(discordBot.Handle)
			runners = append(runners, discordBot.Start)
		}
	}

	if cfg.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.ChatID, status, logger)
		if err != nil {
			logger.Error("Telegram could not been initialized", slog.Any("error", err))
		} else {
			listener.Register(telegramBot.Handle)
			runners = append(runners, func(ctx context.Context) error {
				defer telegramBot.Close()
				return telegramBot.Start(ctx)
			})
		}
	}

	return runners
}

func bridgeClient(cfg config.LauncherCfg) *bridge.Client {
	return bridge.NewClient(logger, cfg.Bridge.Path, cfg.Bridge.Args)
}

func patchSupervisor(cfg config.LauncherCfg, client *bridge.Client) *patch.Supervisor {
	return patch.NewSupervisor(logger, patch.Settings{
		Strategy:       patch.Strategy(cfg.DownloadStrategy),
		SpeedLimit:     cfg.SpeedLimit,
		GamePath:       cfg.GamePath,
		PatchCachePath: cfg.PatchPath,
		Installer:      cfg.Bridge.Installer,
		Launcher:       cfg.Bridge.Launcher,
	}, bridge.NewEngineFactory(client), game.IsRunning)
}

func gameManager(cfg config.LauncherCfg) *game.Manager {
	return game.NewManager(logger,
		game.NewExecLauncher(logger, cfg.RuntimePath, cfg.Wrapper, cfg.SessionArgFormat),
		game.NewExecAddonStarter(logger),
	)
}

func sessionSettings(cfg config.LauncherCfg, acc *config.AccountCfg) session.Settings {
	launchArgs := cfg.AdditionalLaunchArgs
	if acc.LaunchArgs != "" {
		launchArgs = acc.LaunchArgs
	}

	var addons []game.Addon
	for _, a := range cfg.Addons {
		if a.Enabled {
			addons = append(addons, a)
		}
	}

	return session.Settings{
		GamePath:       cfg.GamePath,
		Runner:         cfg.Runner,
		RuntimePath:    cfg.RuntimePath,
		DPIMode:        cfg.DPIMode,
		LaunchArgs:     launchArgs,
		CaptchaEnabled: cfg.Captcha.Mode != config.CaptchaModeOff,
		AutoFillOTP:    acc.AutoFillOTP,
		Addons:         addons,
	}
}

// showOTP prints a ticking one-time code until ctx is done.
func showOTP(ctx context.Context, gen *otp.Generator) {
	ticks := gen.Ticks()
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case t := <-ticks:
			fmt.Printf("\r%s  (%2ds)", t.Code, t.SecondsRemaining)
		case <-time.After(2 * otp.RefreshPeriod):
			if !gen.Configured() {
				return
			}
		}
	}
}

func browseGamePath() (string, error) {
	return utils.BrowseForFile("Select the game executable",
		[]utils.FileDialogFilter{{Name: "Executables", Pattern: "*.exe"}}, "", "exe")
}
