package main

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hectorgimenez/koolaunch/internal/config"
	"github.com/hectorgimenez/koolaunch/internal/game"
)

func TestWrapWithRecoverTurnsPanicIntoError(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := wrapWithRecover(l, func() error { panic("boom") })()
	if err == nil {
		t.Fatal("expected an error from a panicking function")
	}

	want := errors.New("plain")
	if got := wrapWithRecover(l, func() error { return want })(); !errors.Is(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSessionSettingsAccountOverrides(t *testing.T) {
	var cfg config.LauncherCfg
	cfg.GamePath = "/games/client.exe"
	cfg.AdditionalLaunchArgs = "-global"
	cfg.Captcha.Mode = config.CaptchaModeOff
	cfg.Addons = []game.Addon{{Name: "a", Enabled: true}, {Name: "b"}}

	s := sessionSettings(cfg, &config.AccountCfg{LaunchArgs: "-mine", AutoFillOTP: true})
	if s.LaunchArgs != "-mine" {
		t.Fatalf("expected account launch args, got %q", s.LaunchArgs)
	}
	if s.CaptchaEnabled {
		t.Fatal("captcha enabled with mode off")
	}
	if !s.AutoFillOTP {
		t.Fatal("auto-fill not carried over")
	}
	if len(s.Addons) != 1 || s.Addons[0].Name != "a" {
		t.Fatalf("expected only enabled addons, got %+v", s.Addons)
	}

	s = sessionSettings(cfg, &config.AccountCfg{})
	if s.LaunchArgs != "-global" {
		t.Fatalf("expected global launch args, got %q", s.LaunchArgs)
	}
}
