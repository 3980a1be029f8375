package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hectorgimenez/koolaunch/internal/event"
	"github.com/hectorgimenez/koolaunch/internal/utils"
)

type Message struct {
	Account  string
	Title    string
	Body     string
	Severity event.Severity
}

// Notifier shows a message to the user. Implementations may block until the
// user acknowledged it.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Dialog shows messages in a native message box.
type Dialog struct{}

func (Dialog) Notify(_ context.Context, m Message) error {
	utils.ShowDialog(m.Title, m.Body)
	return nil
}

// Console writes messages to w, used when running without a desktop session.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Notify(_ context.Context, m Message) error {
	_, err := fmt.Fprintf(c.w, "[%s] %s: %s\n", m.Severity, m.Title, m.Body)
	return err
}

// Fanout delivers every message to the local notifiers in order and publishes
// it as an event for the remote ones.
type Fanout struct {
	logger    *slog.Logger
	notifiers []Notifier
	publish   func(event.Event)
}

func NewFanout(logger *slog.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{logger: logger, notifiers: notifiers, publish: event.Send}
}

func (f *Fanout) Notify(ctx context.Context, m Message) error {
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, m); err != nil {
			f.logger.Warn("Error delivering notification", slog.String("title", m.Title), slog.Any("error", err))
		}
	}
	if f.publish != nil {
		f.publish(event.Notification(event.Text(m.Account, m.Body), m.Title, m.Severity))
	}

	return nil
}
