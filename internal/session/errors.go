package session

import (
	"errors"
	"fmt"
)

var (
	ErrUserCancelled               = errors.New("login cancelled by user")
	ErrVerificationUnavailable     = errors.New("verification challenge unavailable")
	ErrVerificationTimeout         = errors.New("verification challenge timed out")
	ErrVersionCheckFailed          = errors.New("version check failed")
	ErrRuntimeInjectionUnavailable = errors.New("plugin runtime unavailable")
	ErrMissingRedistributables     = errors.New("required redistributable components are missing")
	ErrUnsupportedArchitecture     = errors.New("unsupported architecture for the plugin runtime")
	ErrOTPRequired                 = errors.New("one-time code required")
)

// AuthRejectedError is returned when the backend refused the credentials.
type AuthRejectedError struct {
	ServerMessage string
}

func (e *AuthRejectedError) Error() string {
	if e.ServerMessage == "" {
		return "login rejected"
	}
	return fmt.Sprintf("login rejected: %s", e.ServerMessage)
}
