package event

import (
	"time"
)

type Event interface {
	Message() string
	Account() string
	OccurredAt() time.Time
}

type BaseEvent struct {
	message    string
	account    string
	occurredAt time.Time
}

func (b BaseEvent) Message() string       { return b.message }
func (b BaseEvent) Account() string       { return b.account }
func (b BaseEvent) OccurredAt() time.Time { return b.occurredAt }

func Text(account, message string) BaseEvent {
	return BaseEvent{
		message:    message,
		account:    account,
		occurredAt: time.Now(),
	}
}

// StageChangedEvent is emitted on every login pipeline transition.
type StageChangedEvent struct {
	BaseEvent
	Stage string
}

func StageChanged(be BaseEvent, stage string) StageChangedEvent {
	return StageChangedEvent{BaseEvent: be, Stage: stage}
}

// OTPTickEvent carries a refreshed one-time code. It is meant for the local
// presentation layer only and is never forwarded to remote notifiers.
type OTPTickEvent struct {
	BaseEvent
	Code             string
	SecondsRemaining int
}

func OTPTick(be BaseEvent, code string, secondsRemaining int) OTPTickEvent {
	return OTPTickEvent{BaseEvent: be, Code: code, SecondsRemaining: secondsRemaining}
}

type PatchProgressEvent struct {
	BaseEvent
	Index int
	Total int
	Ratio float64
}

func PatchProgress(be BaseEvent, index, total int, ratio float64) PatchProgressEvent {
	return PatchProgressEvent{BaseEvent: be, Index: index, Total: total, Ratio: ratio}
}

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
	SeverityFatal Severity = "fatal"
)

// NotificationEvent is a user-facing message.
type NotificationEvent struct {
	BaseEvent
	Title    string
	Severity Severity
}

func Notification(be BaseEvent, title string, severity Severity) NotificationEvent {
	return NotificationEvent{BaseEvent: be, Title: title, Severity: severity}
}

type GameExitedEvent struct {
	BaseEvent
	PID      int
	ExitCode int
}

func GameExited(be BaseEvent, pid, exitCode int) GameExitedEvent {
	return GameExitedEvent{BaseEvent: be, PID: pid, ExitCode: exitCode}
}
