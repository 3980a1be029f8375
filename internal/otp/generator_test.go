package otp

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receiveTick(t *testing.T, ch <-chan Tick) Tick {
	t.Helper()
	select {
	case tick := <-ch:
		return tick
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick")
	}
	return Tick{}
}

func TestConfigureWithoutSecret(t *testing.T) {
	g := NewGenerator(discardLogger())
	found, err := g.Configure(context.Background(), "alice", newMemStore())
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if found {
		t.Fatalf("expected no secret")
	}
	if _, _, err := g.Current(); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSetSecretStoresAndEmits(t *testing.T) {
	clock := &fakeClock{now: time.Unix(59, 0)}
	store := newMemStore()
	g := NewGenerator(discardLogger(), WithClock(clock.Now), WithRefreshPeriod(5*time.Millisecond))
	defer g.Reset()

	if err := g.SetSecret(context.Background(), "alice", rfcSecret, store); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	if stored, ok, _ := store.Get(context.Background(), StoreKey("alice")); !ok || stored != rfcSecret {
		t.Fatalf("secret not stored, got %q", stored)
	}

	tick := receiveTick(t, g.Ticks())
	if tick.Code != "287082" || tick.SecondsRemaining != 1 || tick.AccountID != "alice" {
		t.Fatalf("unexpected first tick %+v", tick)
	}
}

func TestRefreshIsEdgeTriggered(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1111111109, 0)}
	var mu sync.Mutex
	var hooked []Tick
	g := NewGenerator(discardLogger(),
		WithClock(clock.Now),
		WithRefreshPeriod(2*time.Millisecond),
		WithTickHook(func(t Tick) {
			mu.Lock()
			hooked = append(hooked, t)
			mu.Unlock()
		}),
	)
	defer g.Reset()

	if err := g.SetSecret(context.Background(), "alice", rfcSecret, newMemStore()); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	first := receiveTick(t, g.Ticks())

	// Many refresh periods elapse with the clock frozen: nothing new may be emitted.
	time.Sleep(50 * time.Millisecond)
	select {
	case extra := <-g.Ticks():
		t.Fatalf("unexpected tick while clock frozen: %+v", extra)
	default:
	}

	clock.Set(time.Unix(1111111111, 0))
	second := receiveTick(t, g.Ticks())
	if second.Code == first.Code {
		t.Fatalf("expected a new code after crossing the step, got %s twice", first.Code)
	}
	if second.Code != "050471" {
		t.Fatalf("unexpected code %s", second.Code)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(hooked) != 2 {
		t.Fatalf("expected 2 hooked ticks, got %d", len(hooked))
	}
}

func TestClearSecretErasesKeyAndStore(t *testing.T) {
	store := newMemStore()
	g := NewGenerator(discardLogger(), WithRefreshPeriod(5*time.Millisecond))

	if err := g.SetSecret(context.Background(), "alice", rfcSecret, store); err != nil {
		t.Fatalf("set secret: %v", err)
	}

	g.mu.Lock()
	buf := g.key
	g.mu.Unlock()

	if err := g.ClearSecret(context.Background(), "alice", store); err != nil {
		t.Fatalf("clear secret: %v", err)
	}
	if g.Configured() {
		t.Fatalf("generator still configured")
	}
	if buf.use(func([]byte) {}) {
		t.Fatalf("key buffer still readable after clear")
	}
	if _, ok, _ := store.Get(context.Background(), StoreKey("alice")); ok {
		t.Fatalf("secret still in store")
	}
}

func TestConfigureSwitchesAccounts(t *testing.T) {
	store := newMemStore()
	_ = store.Set(context.Background(), StoreKey("bob"), "JBSWY3DPEHPK3PXP")
	g := NewGenerator(discardLogger())
	defer g.Reset()

	if err := g.SetSecret(context.Background(), "alice", rfcSecret, store); err != nil {
		t.Fatalf("set secret: %v", err)
	}
	found, err := g.Configure(context.Background(), "carol", store)
	if err != nil || found {
		t.Fatalf("expected carol to have no secret, found=%v err=%v", found, err)
	}
	if g.Configured() {
		t.Fatalf("alice's key survived the account switch")
	}

	found, err = g.Configure(context.Background(), "bob", store)
	if err != nil || !found {
		t.Fatalf("expected bob's secret, found=%v err=%v", found, err)
	}
}

func TestSetSecretRejectsInvalid(t *testing.T) {
	store := newMemStore()
	g := NewGenerator(discardLogger())
	if err := g.SetSecret(context.Background(), "alice", "not base32!", store); err == nil {
		t.Fatalf("expected error")
	}
	if len(store.values) != 0 {
		t.Fatalf("invalid secret was stored")
	}
}
