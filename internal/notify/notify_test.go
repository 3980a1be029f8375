package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/hectorgimenez/koolaunch/internal/event"
)

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, Message) error {
	f.calls++
	return errors.New("unreachable")
}

func TestFanoutDeliversToAllAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	failing := &failingNotifier{}
	f := NewFanout(slog.New(slog.NewTextHandler(io.Discard, nil)), failing, NewConsole(&buf))

	var published []event.Event
	f.publish = func(e event.Event) { published = append(published, e) }

	err := f.Notify(context.Background(), Message{Account: "alice", Title: "Login failed", Body: "wrong password", Severity: event.SeverityError})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if failing.calls != 1 {
		t.Fatalf("expected failing notifier to be called once")
	}
	if !strings.Contains(buf.String(), "Login failed: wrong password") {
		t.Fatalf("console output missing message: %q", buf.String())
	}
	if len(published) != 1 {
		t.Fatalf("expected one published event, got %d", len(published))
	}
	n, ok := published[0].(event.NotificationEvent)
	if !ok || n.Title != "Login failed" || n.Account() != "alice" || n.Severity != event.SeverityError {
		t.Fatalf("unexpected event %#v", published[0])
	}
}

func TestStatusBoardTracksLatestStage(t *testing.T) {
	board := NewStatusBoard()
	ctx := context.Background()

	_ = board.Handle(ctx, event.StageChanged(event.Text("alice", "checking"), "CheckingVersion"))
	_ = board.Handle(ctx, event.OTPTick(event.Text("alice", ""), "123456", 10))
	_ = board.Handle(ctx, event.StageChanged(event.Text("bob", "launching"), "Launching"))

	st, ok := board.Get("alice")
	if !ok || st.Stage != "CheckingVersion" {
		t.Fatalf("unexpected alice status %+v", st)
	}

	summary := board.Summary()
	if !strings.HasPrefix(summary, "alice: CheckingVersion") || !strings.Contains(summary, "bob: Launching") {
		t.Fatalf("unexpected summary %q", summary)
	}
}
