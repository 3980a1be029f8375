package session

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/hectorgimenez/koolaunch/internal/game"
	"github.com/hectorgimenez/koolaunch/internal/launchenv"
	"github.com/hectorgimenez/koolaunch/internal/patch"
)

var errMissingCredentials = errors.New("username and password are required")

// describe turns a stage failure into the title and text shown to the user.
func describe(stage Stage, err error) (string, string) {
	var rejected *AuthRejectedError
	var pe *patch.Error

	switch {
	case errors.Is(err, errMissingCredentials):
		return "Login", "Please enter your username and password."
	case errors.Is(err, ErrOTPRequired):
		return "Login", "This account requires a one-time code."
	case errors.Is(err, ErrVerificationUnavailable):
		return "Verification unavailable", "No browser could be found to complete the verification challenge. Install a Chromium based browser or set captcha.browserPath."
	case errors.Is(err, ErrVerificationTimeout):
		return "Verification timed out", "The verification challenge was not completed in time, please try again."
	case errors.As(err, &rejected):
		if rejected.ServerMessage != "" {
			return "Login failed", rejected.ServerMessage
		}
		return "Login failed", "The server rejected the login."
	case errors.Is(err, ErrVersionCheckFailed):
		return "Version check failed", "Could not check the game version: " + err.Error()
	case errors.As(err, &pe):
		return describePatchError(pe)
	case errors.Is(err, ErrMissingRedistributables):
		return "Plugin runtime", "Required redistributable components are missing. Install them or launch without the plugin runtime."
	case errors.Is(err, ErrUnsupportedArchitecture):
		return "Plugin runtime", "The plugin runtime does not support this system. Launch without the plugin runtime."
	case errors.Is(err, launchenv.ErrLaunchEnvironmentInvalid):
		return "Launch failed", "The configured runtime is not usable: " + err.Error()
	case errors.Is(err, game.ErrSpawnFailed):
		return "Launch failed", "The game could not be started: " + err.Error()
	}

	return fmt.Sprintf("%s failed", stage), err.Error()
}

func describePatchError(pe *patch.Error) (string, string) {
	switch pe.Kind {
	case patch.KindGameRunning:
		return "Patching", "The game is running. Close it before installing patches."
	case patch.KindAlreadyPatching:
		return "Patching", "Another launcher is already installing patches."
	case patch.KindInstallerStart:
		return "Patching", "The patch installer could not be started."
	case patch.KindNotEnoughSpace:
		return "Not enough space", fmt.Sprintf("Installing the %s needs %s but only %s are available.",
			pe.Scope, humanize.IBytes(uint64(max(pe.Required, 0))), humanize.IBytes(uint64(max(pe.Available, 0))))
	case patch.KindVerification:
		return "Patch verification failed", "A downloaded patch is corrupted. The launcher will now close, please repair the game on the next start."
	case patch.KindCorruptAccount:
		return "Installation corrupted", "The game installation is corrupted. The launcher will now close."
	default:
		return "Patching failed", pe.Error()
	}
}
