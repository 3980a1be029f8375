package telegram

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hectorgimenez/koolaunch/internal/event"
	"github.com/hectorgimenez/koolaunch/internal/notify"
)

type recordingSender struct {
	texts []string
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.texts = append(r.texts, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func TestHandleSendsNotificationsOnly(t *testing.T) {
	rec := &recordingSender{}
	b := &Bot{send: rec, chatID: 1, logger: slog.New(slog.NewTextHandler(io.Discard, nil)), status: notify.NewStatusBoard()}

	ctx := context.Background()
	_ = b.Handle(ctx, event.OTPTick(event.Text("alice", ""), "654321", 5))
	_ = b.Handle(ctx, event.Notification(event.Text("alice", "disk full"), "Patch failed", event.SeverityError))
	_ = b.Handle(ctx, event.GameExited(event.Text("alice", ""), 7, 1))

	if len(rec.texts) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(rec.texts))
	}
	if !strings.Contains(rec.texts[0], "Patch failed") || !strings.Contains(rec.texts[1], "code 1") {
		t.Fatalf("unexpected messages %q", rec.texts)
	}
}

func TestStatusCommand(t *testing.T) {
	rec := &recordingSender{}
	status := notify.NewStatusBoard()
	_ = status.Handle(context.Background(), event.StageChanged(event.Text("bob", ""), "Launching"))
	b := &Bot{send: rec, chatID: 1, logger: slog.New(slog.NewTextHandler(io.Discard, nil)), status: status}

	b.handleCommand("/status")

	if len(rec.texts) != 1 || !strings.Contains(rec.texts[0], "bob: Launching") {
		t.Fatalf("unexpected status reply %q", rec.texts)
	}
}
