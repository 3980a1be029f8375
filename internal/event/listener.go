package event

import (
	"context"
	"log/slog"
	"sync"
)

var events = make(chan Event, 200)

// Send queues e for the registered handlers. It never blocks the caller; when
// the queue is full the event is dropped.
func Send(e Event) {
	select {
	case events <- e:
	default:
	}
}

type Handler func(ctx context.Context, e Event) error

type Listener struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers []Handler
	// busy is held while a queued event is being delivered.
	busy sync.Mutex
}

func NewListener(logger *slog.Logger) *Listener {
	return &Listener{logger: logger}
}

func (l *Listener) Register(h Handler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
}

// Listen dispatches queued events to every handler until ctx is done.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			l.busy.Lock()
			l.Dispatch(ctx, e)
			l.busy.Unlock()
		}
	}
}

// Flush waits for the event being delivered by Listen, if any, and then
// delivers everything still queued. Call it before the process exits.
func (l *Listener) Flush(ctx context.Context) {
	l.busy.Lock()
	defer l.busy.Unlock()

	for {
		select {
		case e := <-events:
			l.Dispatch(ctx, e)
		default:
			return
		}
	}
}

// Dispatch delivers e synchronously, in registration order.
func (l *Listener) Dispatch(ctx context.Context, e Event) {
	l.mu.RLock()
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			l.logger.Error("error running event handler", slog.Any("error", err))
		}
	}
}
