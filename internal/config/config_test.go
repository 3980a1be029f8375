package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hectorgimenez/koolaunch/internal/game"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func setupConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	BaseDir = dir
	t.Cleanup(func() { BaseDir = "" })

	writeFile(t, filepath.Join(dir, "config", launcherFile), `
gamePath: /games/client.exe
runner: wine
speedLimit: 100
compat:
  fixLocale: true
discord:
  enabled: true
  useWebhook: true
`)
	writeFile(t, filepath.Join(dir, "config", accountsDir, templateAccount, accountFile), "username: \"\"\notpEnabled: false\n")
	writeFile(t, filepath.Join(dir, "config", accountsDir, "main", accountFile), "username: alice\notpEnabled: true\nautoFillOtp: true\n")

	return dir
}

func TestLoadReadsLauncherAndAccounts(t *testing.T) {
	setupConfigDir(t)

	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := Snapshot()
	if cfg.GamePath != "/games/client.exe" || cfg.Runner != game.RunnerWine || cfg.SpeedLimit != 100 {
		t.Fatalf("unexpected launcher config %+v", cfg)
	}
	if !cfg.Compat.FixLocale || cfg.LaunchEnvPlaceholder != "%command%" || cfg.Captcha.Mode != CaptchaModeOn {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Discord.Enabled {
		t.Fatalf("discord webhook mode without url must be disabled")
	}

	acc, ok := GetAccount("main")
	if !ok || acc.Username != "alice" || !acc.OTPEnabled || !acc.AutoFillOTP {
		t.Fatalf("unexpected account %+v", acc)
	}
	if _, ok := GetAccount(templateAccount); ok {
		t.Fatalf("template must not be loaded as an account")
	}
}

func TestEnvOverridesFileValues(t *testing.T) {
	setupConfigDir(t)
	t.Setenv("KOOLAUNCH_GAME_PATH", "/other/client.exe")
	t.Setenv("KOOLAUNCH_SPEED_LIMIT", "42")
	t.Setenv("KOOLAUNCH_CAPTCHA_MODE", CaptchaModeOff)

	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := Snapshot()
	if cfg.GamePath != "/other/client.exe" || cfg.SpeedLimit != 42 || cfg.Captcha.Mode != CaptchaModeOff {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Runner != game.RunnerWine {
		t.Fatalf("unset variables must keep file values, got runner %q", cfg.Runner)
	}
}

func TestCreateAccountFromTemplate(t *testing.T) {
	dir := setupConfigDir(t)
	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := CreateAccountFromTemplate("alt"); err != nil {
		t.Fatalf("CreateAccountFromTemplate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config", accountsDir, "alt", accountFile)); err != nil {
		t.Fatalf("account file not copied: %v", err)
	}
	if acc, ok := GetAccount("alt"); !ok || acc.Username != "alt" {
		t.Fatalf("new account not loaded: %+v", acc)
	}

	if err := CreateAccountFromTemplate("alt"); err == nil {
		t.Fatalf("expected duplicate account error")
	}
	if err := CreateAccountFromTemplate("../escape"); err == nil {
		t.Fatalf("expected invalid name error")
	}
}

func TestValidateAndSaveConfigRejectsMissingGame(t *testing.T) {
	setupConfigDir(t)
	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := Snapshot()
	cfg.GamePath = filepath.Join(t.TempDir(), "missing.exe")
	if err := ValidateAndSaveConfig(cfg); err == nil {
		t.Fatalf("expected invalid game path error")
	}
}

func TestValidateAndSaveConfigWritesAndReloads(t *testing.T) {
	dir := setupConfigDir(t)
	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gamePath := filepath.Join(dir, "client.exe")
	writeFile(t, gamePath, "")

	cfg := Snapshot()
	cfg.GamePath = gamePath
	cfg.Runner = game.RunnerNative
	if err := ValidateAndSaveConfig(cfg); err != nil {
		t.Fatalf("ValidateAndSaveConfig: %v", err)
	}
	if Snapshot().GamePath != gamePath {
		t.Fatalf("saved config not reloaded")
	}
}
