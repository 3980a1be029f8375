package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/hectorgimenez/koolaunch/internal/session"
)

type loginRequest struct {
	Username     string  `cbor:"username"`
	Password     string  `cbor:"password"`
	OTP          *string `cbor:"otp,omitempty"`
	CaptchaToken string  `cbor:"captcha_token,omitempty"`
}

type checkVersionRequest struct {
	GamePath string `cbor:"game_path"`
}

// AuthAPI forwards authentication calls to the helper.
type AuthAPI struct {
	client *Client
}

func NewAuthAPI(client *Client) *AuthAPI {
	return &AuthAPI{client: client}
}

func (a *AuthAPI) Login(ctx context.Context, username, password string, otp *string, captchaToken string) (session.AuthSession, error) {
	var s session.AuthSession
	err := a.client.call(ctx, opLogin, loginRequest{
		Username:     username,
		Password:     password,
		OTP:          otp,
		CaptchaToken: captchaToken,
	}, &s, nil)
	if err != nil {
		return session.AuthSession{}, err
	}

	return s, nil
}

func (a *AuthAPI) CheckVersion(ctx context.Context, gamePath string) (session.VersionCheckResult, error) {
	var res session.VersionCheckResult
	if err := a.client.call(ctx, opCheckVersion, checkVersionRequest{GamePath: gamePath}, &res, nil); err != nil {
		return session.VersionCheckResult{}, err
	}

	return res, nil
}

type holdForUpdateResult struct {
	State session.InjectorState `cbor:"state"`
}

// Injector forwards plugin runtime calls to the helper.
type Injector struct {
	client *Client
}

func NewInjector(client *Client) *Injector {
	return &Injector{client: client}
}

func (i *Injector) HoldForUpdate(ctx context.Context, gamePath string) (session.InjectorState, error) {
	var res holdForUpdateResult
	if err := i.client.call(ctx, opHoldForUpdate, checkVersionRequest{GamePath: gamePath}, &res, nil); err != nil {
		return session.InjectorUnavailable, err
	}

	return res.State, nil
}

func (i *Injector) CheckCompatibility(ctx context.Context) error {
	err := i.client.call(ctx, opCheckCompatibility, nil, nil, nil)

	var re *RemoteError
	if errors.As(err, &re) {
		switch re.Code {
		case CodeMissingRedistributables:
			return fmt.Errorf("%w: %s", session.ErrMissingRedistributables, re.Message)
		case CodeUnsupportedArchitecture:
			return fmt.Errorf("%w: %s", session.ErrUnsupportedArchitecture, re.Message)
		}
	}

	return err
}

type injectRequest struct {
	PID     int                   `cbor:"pid"`
	Options session.InjectOptions `cbor:"options"`
}

func (i *Injector) Inject(ctx context.Context, pid int, opts session.InjectOptions) error {
	return i.client.call(ctx, opInject, injectRequest{PID: pid, Options: opts}, nil, nil)
}
