package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	opLogin              = "auth.login"
	opCheckVersion       = "auth.check_version"
	opHoldForUpdate      = "injector.hold_for_update"
	opCheckCompatibility = "injector.check_compatibility"
	opInject             = "injector.inject"
	opPatchApply         = "patch.apply"
)

const (
	frameProgress = "progress"
	frameFailed   = "failed"
	frameResult   = "result"
	frameError    = "error"
)

// Error codes sent by the helper in error frames.
const (
	CodeMissingRedistributables = "missing_redistributables"
	CodeUnsupportedArchitecture = "unsupported_architecture"
	CodeInstallerStart          = "installer_start"
	CodeNotEnoughSpace          = "not_enough_space"
)

type request struct {
	Op      string          `cbor:"op"`
	Payload cbor.RawMessage `cbor:"payload,omitempty"`
}

type frame struct {
	Kind     string          `cbor:"kind"`
	Progress *progressFrame  `cbor:"progress,omitempty"`
	Failed   *failedFrame    `cbor:"failed,omitempty"`
	Result   cbor.RawMessage `cbor:"result,omitempty"`
	Error    *RemoteError    `cbor:"error,omitempty"`
}

type progressFrame struct {
	CurrentIndex       int     `cbor:"current_index"`
	AllDownloadsLength int64   `cbor:"all_downloads_length"`
	Speeds             []int64 `cbor:"speeds,omitempty"`
}

// RemoteError is an error reported by the helper process.
type RemoteError struct {
	Code      string `cbor:"code"`
	Message   string `cbor:"message,omitempty"`
	Scope     string `cbor:"scope,omitempty"`
	Required  int64  `cbor:"required,omitempty"`
	Available int64  `cbor:"available,omitempty"`
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("helper error %s", e.Code)
	}
	return fmt.Sprintf("helper error %s: %s", e.Code, e.Message)
}
