package session

import (
	"context"

	"github.com/hectorgimenez/koolaunch/internal/patch"
)

type Credentials struct {
	Username   string
	Password   string
	OTPEnabled bool
}

// AuthSession is the backend answer to a login request.
type AuthSession struct {
	Success      bool    `cbor:"success"`
	SessionID    *string `cbor:"session_id,omitempty"`
	ErrorMessage *string `cbor:"error_message,omitempty"`
}

// Usable reports whether the session can be used to launch the game.
func (a AuthSession) Usable() bool {
	return a.Success && a.SessionID != nil && *a.SessionID != ""
}

type VersionState int

const (
	UpToDate VersionState = iota
	NeedsPatch
)

func (s VersionState) String() string {
	if s == NeedsPatch {
		return "needs patch"
	}
	return "up to date"
}

type VersionCheckResult struct {
	State          VersionState  `cbor:"state"`
	PendingPatches []patch.Entry `cbor:"pending_patches,omitempty"`
}

type InjectorState int

const (
	InjectorOK InjectorState = iota
	InjectorUpdateFailed
	InjectorUnavailable
)

func (s InjectorState) String() string {
	switch s {
	case InjectorOK:
		return "ok"
	case InjectorUpdateFailed:
		return "update failed"
	default:
		return "unavailable"
	}
}

// AuthAPI is the remote authentication backend.
type AuthAPI interface {
	Login(ctx context.Context, username, password string, otp *string, captchaToken string) (AuthSession, error)
	CheckVersion(ctx context.Context, gamePath string) (VersionCheckResult, error)
}

type InjectOptions struct {
	NoPlugins           bool `cbor:"no_plugins"`
	NoThirdPartyPlugins bool `cbor:"no_third_party_plugins"`
}

// Injector loads the plugin runtime into the game process.
type Injector interface {
	HoldForUpdate(ctx context.Context, gamePath string) (InjectorState, error)
	// CheckCompatibility returns ErrMissingRedistributables or
	// ErrUnsupportedArchitecture when the runtime cannot be used on this host.
	CheckCompatibility(ctx context.Context) error
	Inject(ctx context.Context, pid int, opts InjectOptions) error
}
