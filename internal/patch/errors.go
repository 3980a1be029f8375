package patch

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

type Kind int

const (
	KindPatchFailed Kind = iota
	KindInstallerStart
	KindNotEnoughSpace
	KindVerification
	KindAlreadyPatching
	KindGameRunning
	KindCorruptAccount
)

func (k Kind) String() string {
	switch k {
	case KindInstallerStart:
		return "installer start failure"
	case KindNotEnoughSpace:
		return "not enough space"
	case KindVerification:
		return "patch verification failure"
	case KindAlreadyPatching:
		return "already patching"
	case KindGameRunning:
		return "game running"
	case KindCorruptAccount:
		return "corrupt account data"
	default:
		return "patch failure"
	}
}

// Scope tells which size requirement could not be met for KindNotEnoughSpace.
type Scope int

const (
	ScopePending Scope = iota
	ScopeAllQueued
	ScopeInstalledGame
)

func (s Scope) String() string {
	switch s {
	case ScopeAllQueued:
		return "all queued patches"
	case ScopeInstalledGame:
		return "installed game"
	default:
		return "pending patches"
	}
}

// ErrInstallerStart may be returned (wrapped) by an Engine when the installer
// collaborator could not be started.
var ErrInstallerStart = errors.New("patch installer could not be started")

// Error is the single failure type returned by the supervisor.
type Error struct {
	Kind      Kind
	Scope     Scope
	Required  int64
	Available int64
	// Entry is the patch being processed when the failure happened, if known.
	Entry *Entry
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	switch {
	case e.Kind == KindNotEnoughSpace:
		msg = fmt.Sprintf("%s for %s: %s required, %s available", msg, e.Scope,
			humanize.IBytes(uint64(max(e.Required, 0))), humanize.IBytes(uint64(max(e.Available, 0))))
	case e.Entry != nil:
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Entry.Repository, e.Entry.VersionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the application must stop to avoid running against a
// corrupted install.
func (e *Error) Fatal() bool {
	return e.Kind == KindVerification || e.Kind == KindCorruptAccount
}

// IsFatal reports whether err carries a fatal patch failure.
func IsFatal(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Fatal()
}

// SpaceError builds a KindNotEnoughSpace error.
func SpaceError(scope Scope, required, available int64) *Error {
	return &Error{Kind: KindNotEnoughSpace, Scope: scope, Required: required, Available: available}
}
