package patch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/hectorgimenez/koolaunch/internal/event"
)

const (
	PollInterval = 30 * time.Millisecond
	// pollerJoinTimeout bounds how long ApplyPatches waits for the poller to exit.
	pollerJoinTimeout = time.Second
)

type Settings struct {
	Strategy       Strategy
	SpeedLimit     int64
	GamePath       string
	PatchCachePath string
	Installer      string
	Launcher       string
}

// Request is one ApplyPatches invocation.
type Request struct {
	Account    string
	Repository string
	Pending    []Entry
	SessionID  string
	Resume     bool
	OnProgress func(Progress)
}

type Supervisor struct {
	logger    *slog.Logger
	settings  Settings
	factory   EngineFactory
	isRunning func(gamePath string) bool
	publish   func(event.Event)
	interval  time.Duration
	lock      *fileLock
}

type Option func(*Supervisor)

// WithPublisher overrides where progress events are sent, event.Send by default.
func WithPublisher(fn func(event.Event)) Option {
	return func(s *Supervisor) { s.publish = fn }
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.interval = d }
}

func NewSupervisor(logger *slog.Logger, settings Settings, factory EngineFactory, isRunning func(gamePath string) bool, opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:    logger,
		settings:  settings,
		factory:   factory,
		isRunning: isRunning,
		publish:   event.Send,
		interval:  PollInterval,
		lock:      newFileLock(settings.PatchCachePath),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ApplyPatches installs req.Pending front to back. It returns nil on success or
// a *Error describing the failure.
func (s *Supervisor) ApplyPatches(ctx context.Context, req Request) error {
	if len(req.Pending) == 0 {
		return nil
	}

	if s.isRunning != nil && s.isRunning(s.settings.GamePath) {
		return &Error{Kind: KindGameRunning}
	}

	release, err := s.lock.acquire()
	if err != nil {
		if errors.Is(err, errLockHeld) {
			return &Error{Kind: KindAlreadyPatching}
		}
		return &Error{Kind: KindPatchFailed, Err: err}
	}
	defer func() {
		if err := release(); err != nil {
			s.logger.Warn("Error releasing patch lock", slog.Any("error", err))
		}
	}()

	engine, err := s.factory(EngineConfig{
		Strategy:       s.settings.Strategy,
		SpeedLimit:     s.settings.SpeedLimit,
		Repository:     req.Repository,
		Patches:        req.Pending,
		GamePath:       s.settings.GamePath,
		PatchCachePath: filepath.Join(s.settings.PatchCachePath, req.Repository),
		Installer:      s.settings.Installer,
		Launcher:       s.settings.Launcher,
		SessionID:      req.SessionID,
	})
	if err != nil {
		return &Error{Kind: KindInstallerStart, Err: err}
	}

	var failures failureRecorder
	engine.OnFailed(failures.record)

	s.logger.Info("Applying patches",
		slog.String("repository", req.Repository),
		slog.Int("count", len(req.Pending)),
	)

	pollCtx, stopPoller := context.WithCancel(ctx)
	pollerDone := make(chan struct{})
	go s.poll(pollCtx, engine, req, pollerDone)
	defer func() {
		stopPoller()
		select {
		case <-pollerDone:
		case <-time.After(pollerJoinTimeout):
			s.logger.Error("Patch progress poller did not stop in time")
		}
	}()

	applyErr := runEngine(ctx, engine, req.Resume)

	return classify(applyErr, failures.worst())
}

func runEngine(ctx context.Context, engine Engine, resume bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("patch engine panic: %v", r)
		}
	}()

	return engine.Apply(ctx, resume)
}

func (s *Supervisor) poll(ctx context.Context, engine Engine, req Request, done chan<- struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Patch progress poller crashed", slog.Any("panic", r))
		}
	}()

	tracker := newProgressTracker(req.Repository, req.Pending)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last Progress
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p := tracker.observe(engine.CurrentIndex(), engine.AllDownloadsLength(), engine.Speeds())
		if p == last {
			continue
		}
		last = p

		if req.OnProgress != nil {
			req.OnProgress(p)
		}
		if s.publish != nil {
			s.publish(event.PatchProgress(event.Text(req.Account, p.Line), p.CurrentIndex, p.TotalCount, p.Ratio))
		}
	}
}

// classify maps the engine outcome to the supervisor's error type. A reported
// verification or corruption failure wins over whatever Apply returned.
func classify(applyErr error, failure *recordedFailure) error {
	if failure != nil {
		entry := failure.entry
		switch failure.ctx.Reason {
		case FailureVerification:
			return &Error{Kind: KindVerification, Entry: &entry, Err: failureErr(failure.ctx, applyErr)}
		case FailureCorruptAccount:
			return &Error{Kind: KindCorruptAccount, Entry: &entry, Err: failureErr(failure.ctx, applyErr)}
		}
	}

	if applyErr == nil {
		if failure != nil {
			entry := failure.entry
			return &Error{Kind: KindPatchFailed, Entry: &entry, Err: failureErr(failure.ctx, nil)}
		}
		return nil
	}

	var pe *Error
	if errors.As(applyErr, &pe) {
		return pe
	}
	if errors.Is(applyErr, ErrInstallerStart) {
		return &Error{Kind: KindInstallerStart, Err: applyErr}
	}

	e := &Error{Kind: KindPatchFailed, Err: applyErr}
	if failure != nil {
		entry := failure.entry
		e.Entry = &entry
	}

	return e
}

func failureErr(fc FailureContext, applyErr error) error {
	if fc.Message == "" {
		return applyErr
	}
	if applyErr == nil {
		return errors.New(fc.Message)
	}

	return fmt.Errorf("%s: %w", fc.Message, applyErr)
}

type recordedFailure struct {
	entry Entry
	ctx   FailureContext
}

// failureRecorder keeps the most severe failure reported by the engine.
type failureRecorder struct {
	mu      sync.Mutex
	failure *recordedFailure
}

func (r *failureRecorder) record(entry Entry, fc FailureContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failure == nil || fc.Reason > r.failure.ctx.Reason {
		r.failure = &recordedFailure{entry: entry, ctx: fc}
	}
}

func (r *failureRecorder) worst() *recordedFailure {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.failure
}
