package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RefreshPeriod is how often the auto-refresh loop recomputes the code.
const RefreshPeriod = time.Second

// ErrNotConfigured is returned when a code is requested without a secret.
var ErrNotConfigured = errors.New("otp secret not configured")

// SecretStore is the slice of the account secret store the generator needs.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Tick is one auto-refresh record. Ticks are only emitted when the code or the
// remaining seconds changed since the previous one.
type Tick struct {
	AccountID        string
	Code             string
	SecondsRemaining int
	At               time.Time
}

// Generator produces time based one-time codes for the configured account and
// keeps them fresh in the background while a secret is loaded.
type Generator struct {
	logger *slog.Logger
	now    func() time.Time
	period time.Duration
	onTick func(Tick)

	mu        sync.Mutex
	accountID string
	key       *keyBuffer
	last      Tick
	stop      context.CancelFunc
	done      chan struct{}

	ticks chan Tick
}

type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRefreshPeriod overrides RefreshPeriod, mostly useful in tests.
func WithRefreshPeriod(d time.Duration) Option {
	return func(g *Generator) { g.period = d }
}

// WithTickHook registers a callback invoked for every emitted tick, in order.
func WithTickHook(fn func(Tick)) Option {
	return func(g *Generator) { g.onTick = fn }
}

func NewGenerator(logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		logger: logger,
		now:    time.Now,
		period: RefreshPeriod,
		ticks:  make(chan Tick, 16),
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// StoreKey is the secret store key holding the base32 secret of an account.
func StoreKey(accountID string) string {
	return "otp-secret/" + accountID
}

// Ticks is the ordered stream of edge-triggered refresh records.
func (g *Generator) Ticks() <-chan Tick {
	return g.ticks
}

// Configure loads the stored secret for accountID. It returns false when the
// account has no secret; any key from a previous account is erased first.
func (g *Generator) Configure(ctx context.Context, accountID string, store SecretStore) (bool, error) {
	g.Reset()

	secret, found, err := store.Get(ctx, StoreKey(accountID))
	if err != nil {
		return false, fmt.Errorf("error reading otp secret: %w", err)
	}
	if !found || secret == "" {
		g.mu.Lock()
		g.accountID = accountID
		g.mu.Unlock()
		return false, nil
	}

	key, err := Decode(secret)
	if err != nil {
		return false, err
	}
	if err := g.load(accountID, key); err != nil {
		return false, err
	}

	return true, nil
}

// SetSecret validates and stores a new secret for accountID and starts
// auto-refresh.
func (g *Generator) SetSecret(ctx context.Context, accountID, secret string, store SecretStore) error {
	key, err := Decode(secret)
	if err != nil {
		return err
	}

	if err := store.Set(ctx, StoreKey(accountID), normalizeSecret(secret)); err != nil {
		wipe(key)
		return fmt.Errorf("error storing otp secret: %w", err)
	}

	g.Reset()

	return g.load(accountID, key)
}

// ClearSecret stops auto-refresh, erases the in-memory key and deletes the
// stored secret.
func (g *Generator) ClearSecret(ctx context.Context, accountID string, store SecretStore) error {
	g.Reset()

	if err := store.Delete(ctx, StoreKey(accountID)); err != nil {
		return fmt.Errorf("error deleting otp secret: %w", err)
	}

	return nil
}

// Reset stops auto-refresh and erases the in-memory key without touching the
// store. Used on logout and account switch.
func (g *Generator) Reset() {
	g.mu.Lock()
	stop, done, key := g.stop, g.done, g.key
	g.stop, g.done, g.key = nil, nil, nil
	g.accountID = ""
	g.last = Tick{}
	g.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if key != nil {
		if err := key.release(); err != nil {
			g.logger.Warn("Error releasing otp key", slog.Any("error", err))
		}
	}
}

// Configured reports whether a key is currently loaded.
func (g *Generator) Configured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.key != nil
}

// Current returns the code valid now and its remaining seconds.
func (g *Generator) Current() (string, int, error) {
	g.mu.Lock()
	key := g.key
	g.mu.Unlock()
	if key == nil {
		return "", 0, ErrNotConfigured
	}

	now := g.now()
	var code string
	if !key.use(func(k []byte) { code = TOTP(k, now) }) {
		return "", 0, ErrNotConfigured
	}

	return code, SecondsRemaining(now), nil
}

func (g *Generator) load(accountID string, key []byte) error {
	buf, err := newKeyBuffer(key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	g.mu.Lock()
	g.accountID = accountID
	g.key = buf
	g.stop = cancel
	g.done = done
	g.mu.Unlock()

	g.refresh()
	go g.refreshLoop(ctx, done)

	return nil
}

func (g *Generator) refreshLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refresh()
		}
	}
}

// refresh recomputes the code and emits a tick only on change.
func (g *Generator) refresh() {
	code, remaining, err := g.Current()
	if err != nil {
		return
	}

	g.mu.Lock()
	if code == g.last.Code && remaining == g.last.SecondsRemaining {
		g.mu.Unlock()
		return
	}
	t := Tick{AccountID: g.accountID, Code: code, SecondsRemaining: remaining, At: g.now()}
	g.last = t
	g.mu.Unlock()

	g.emit(t)
}

func (g *Generator) emit(t Tick) {
	if g.onTick != nil {
		g.onTick(t)
	}

	select {
	case g.ticks <- t:
	default:
		// Slow consumer: drop the oldest record so the stream stays current.
		select {
		case <-g.ticks:
		default:
		}
		select {
		case g.ticks <- t:
		default:
		}
	}
}
