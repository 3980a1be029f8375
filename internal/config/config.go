package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/hectorgimenez/koolaunch/internal/game"
	"github.com/hectorgimenez/koolaunch/internal/launchenv"
	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"
)

var (
	cfgMux   sync.RWMutex
	Launcher *LauncherCfg
	Accounts map[string]*AccountCfg
	Version  = "dev"

	// BaseDir is the directory holding config/, the working directory when empty.
	BaseDir = ""
)

const (
	CaptchaModeOn  = "on"
	CaptchaModeOff = "off"

	launcherFile     = "koolaunch.yaml"
	accountFile      = "account.yaml"
	accountsDir      = "accounts"
	templateAccount  = "template"
	defaultPatchPath = "patches"
)

type LauncherCfg struct {
	Debug struct {
		Log bool `yaml:"log"`
	} `yaml:"debug"`
	LogSaveDirectory     string           `yaml:"logSaveDirectory"`
	GamePath             string           `yaml:"gamePath"`
	PatchPath            string           `yaml:"patchPath"`
	DownloadStrategy     string           `yaml:"downloadStrategy"`
	SpeedLimit           int64            `yaml:"speedLimit"`
	Runner               game.Runner      `yaml:"runner"`
	RuntimePath          string           `yaml:"runtimePath"`
	Wrapper              string           `yaml:"wrapper"`
	DPIMode              game.DPIMode     `yaml:"dpiMode"`
	AdditionalLaunchArgs string           `yaml:"additionalLaunchArgs"`
	LaunchEnvPlaceholder string           `yaml:"launchEnvPlaceholder"`
	SessionArgFormat     string           `yaml:"sessionArgFormat"`
	Compat               launchenv.Compat `yaml:"compat"`
	Captcha              struct {
		Mode        string `yaml:"mode"`
		BrowserPath string `yaml:"browserPath"`
		SiteKey     string `yaml:"siteKey"`
		Action      string `yaml:"action"`
		Origin      string `yaml:"origin"`
		Headless    bool   `yaml:"headless"`
	} `yaml:"captcha"`
	Addons []game.Addon `yaml:"addons"`
	Bridge struct {
		Path      string   `yaml:"path"`
		Args      []string `yaml:"args"`
		Installer string   `yaml:"installer"`
		Launcher  string   `yaml:"launcher"`
	} `yaml:"bridge"`
	Secrets struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
	} `yaml:"secrets"`
	Discord struct {
		Enabled                bool     `yaml:"enabled"`
		EnableStageMessages    bool     `yaml:"enableStageMessages"`
		EnableErrorMessages    bool     `yaml:"enableErrorMessages"`
		EnableGameExitMessages bool     `yaml:"enableGameExitMessages"`
		EnablePatchMessages    bool     `yaml:"enablePatchMessages"`
		ChannelID              string   `yaml:"channelId"`
		Token                  string   `yaml:"token"`
		UseWebhook             bool     `yaml:"useWebhook"`
		WebhookURL             string   `yaml:"webhookUrl"`
		BotAdmins              []string `yaml:"botAdmins"`
	} `yaml:"discord"`
	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		ChatID  int64  `yaml:"chatId"`
		Token   string `yaml:"token"`
	} `yaml:"telegram"`
}

// AccountCfg is one login profile under config/accounts/<name>.
type AccountCfg struct {
	Username   string `yaml:"username"`
	OTPEnabled bool   `yaml:"otpEnabled"`
	// AutoFillOTP uses the stored OTP secret instead of prompting for a code.
	AutoFillOTP bool `yaml:"autoFillOtp"`
	// LaunchArgs overrides LauncherCfg.AdditionalLaunchArgs when set.
	LaunchArgs string `yaml:"launchArgs"`

	ConfigFolderName string `yaml:"-"`
}

// envOverrides are applied on top of koolaunch.yaml. Unset variables leave
// the file values untouched.
type envOverrides struct {
	GamePath    *string `env:"GAME_PATH"`
	PatchPath   *string `env:"PATCH_PATH"`
	RuntimePath *string `env:"RUNTIME_PATH"`
	Runner      *string `env:"RUNNER"`
	BridgePath  *string `env:"BRIDGE_PATH"`
	SpeedLimit  *int64  `env:"SPEED_LIMIT"`
	Debug       *bool   `env:"DEBUG"`
	CaptchaMode *string `env:"CAPTCHA_MODE"`
}

func GetAccount(name string) (*AccountCfg, bool) {
	cfgMux.RLock()
	defer cfgMux.RUnlock()

	acc, ok := Accounts[name]
	return acc, ok
}

func GetAccounts() map[string]*AccountCfg {
	cfgMux.RLock()
	defer cfgMux.RUnlock()

	accounts := make(map[string]*AccountCfg, len(Accounts))
	for name, acc := range Accounts {
		accounts[name] = acc
	}

	return accounts
}

// Snapshot returns a copy of the launcher config safe to hold across a login attempt.
func Snapshot() LauncherCfg {
	cfgMux.RLock()
	defer cfgMux.RUnlock()

	if Launcher == nil {
		return LauncherCfg{}
	}
	cfg := *Launcher
	cfg.Addons = append([]game.Addon(nil), Launcher.Addons...)

	return cfg
}

func Load() error {
	cfgMux.Lock()
	defer cfgMux.Unlock()
	Accounts = make(map[string]*AccountCfg)

	launcherPath := getAbsPath(filepath.Join("config", launcherFile))
	r, err := os.Open(launcherPath)
	if err != nil {
		return fmt.Errorf("error loading %s: %w", launcherFile, err)
	}
	defer r.Close()

	cfg := &LauncherCfg{}
	d := yaml.NewDecoder(r)
	if err = d.Decode(cfg); err != nil {
		return fmt.Errorf("error reading config %s: %w", launcherPath, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	sanitizeDiscordConfig(cfg)
	Launcher = cfg

	dir := getAbsPath(filepath.Join("config", accountsDir))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading accounts directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == templateAccount {
			continue
		}

		accPath := filepath.Join(dir, entry.Name(), accountFile)
		content, err := os.ReadFile(accPath)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", accPath, err)
		}

		acc := AccountCfg{}
		if err := yaml.Unmarshal(content, &acc); err != nil {
			return fmt.Errorf("error reading %s account config: %w", accPath, err)
		}
		acc.ConfigFolderName = entry.Name()
		if acc.Username == "" {
			acc.Username = entry.Name()
		}

		Accounts[entry.Name()] = &acc
	}

	return nil
}

func applyEnvOverrides(cfg *LauncherCfg) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: "KOOLAUNCH_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.GamePath != nil {
		cfg.GamePath = *o.GamePath
	}
	if o.PatchPath != nil {
		cfg.PatchPath = *o.PatchPath
	}
	if o.RuntimePath != nil {
		cfg.RuntimePath = *o.RuntimePath
	}
	if o.Runner != nil {
		cfg.Runner = game.Runner(*o.Runner)
	}
	if o.BridgePath != nil {
		cfg.Bridge.Path = *o.BridgePath
	}
	if o.SpeedLimit != nil {
		cfg.SpeedLimit = *o.SpeedLimit
	}
	if o.Debug != nil {
		cfg.Debug.Log = *o.Debug
	}
	if o.CaptchaMode != nil {
		cfg.Captcha.Mode = *o.CaptchaMode
	}

	return nil
}

func applyDefaults(cfg *LauncherCfg) {
	if cfg.Runner == "" {
		cfg.Runner = game.RunnerNative
	}
	if cfg.PatchPath == "" {
		cfg.PatchPath = getAbsPath(defaultPatchPath)
	}
	if cfg.LaunchEnvPlaceholder == "" {
		cfg.LaunchEnvPlaceholder = launchenv.DefaultPlaceholder
	}
	if cfg.LogSaveDirectory == "" {
		cfg.LogSaveDirectory = getAbsPath("logs")
	}
	if cfg.Secrets.Dir == "" {
		cfg.Secrets.Dir = getAbsPath(filepath.Join("config", "secrets"))
	}
	if cfg.Captcha.Mode == "" {
		cfg.Captcha.Mode = CaptchaModeOn
	}
	if cfg.Captcha.Action == "" {
		cfg.Captcha.Action = "login"
	}
	if cfg.DownloadStrategy == "" {
		cfg.DownloadStrategy = "default"
	}
}

func sanitizeDiscordConfig(cfg *LauncherCfg) {
	if !cfg.Discord.Enabled {
		return
	}
	useWebhook := cfg.Discord.UseWebhook
	webhookURL := strings.TrimSpace(cfg.Discord.WebhookURL)
	token := strings.TrimSpace(cfg.Discord.Token)
	channelID := strings.TrimSpace(cfg.Discord.ChannelID)

	if (useWebhook && webhookURL == "") || (!useWebhook && (token == "" || channelID == "")) {
		cfg.Discord.Enabled = false
	}
}

// CreateAccountFromTemplate copies config/accounts/template into a new account.
func CreateAccountFromTemplate(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if name == templateAccount || strings.ContainsAny(name, `/\.`) {
		return fmt.Errorf("invalid account name %q", name)
	}

	dst := getAbsPath(filepath.Join("config", accountsDir, name))
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		return errors.New("account with that name already exists")
	}

	err := cp.Copy(getAbsPath(filepath.Join("config", accountsDir, templateAccount)), dst)
	if err != nil {
		return fmt.Errorf("error copying template: %w", err)
	}

	return Load()
}

func ValidateAndSaveConfig(config LauncherCfg) error {
	if info, err := os.Stat(config.GamePath); err != nil || info.IsDir() {
		return errors.New("gamePath is not valid")
	}
	if config.Runner == game.RunnerWine {
		if err := launchenv.ValidateRuntime(config.RuntimePath); err != nil {
			return err
		}
	}
	if config.Discord.Enabled {
		sanitizeDiscordConfig(&config)
	}

	text, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error parsing launcher config: %w", err)
	}

	err = os.WriteFile(getAbsPath(filepath.Join("config", launcherFile)), text, 0644)
	if err != nil {
		return fmt.Errorf("error writing launcher config: %w", err)
	}

	return Load()
}

func SaveAccountConfig(name string, acc *AccountCfg) error {
	d, err := yaml.Marshal(acc)
	if err != nil {
		return err
	}

	err = os.WriteFile(getAbsPath(filepath.Join("config", accountsDir, name, accountFile)), d, 0644)
	if err != nil {
		return fmt.Errorf("error writing account config: %w", err)
	}

	return Load()
}

func getAbsPath(relPath string) string {
	if BaseDir != "" {
		return filepath.Join(BaseDir, relPath)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return relPath
	}
	return filepath.Join(cwd, relPath)
}
