package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hectorgimenez/koolaunch/internal/event"
)

type AccountStatus struct {
	Stage     string
	Message   string
	UpdatedAt time.Time
}

// StatusBoard keeps the last known stage of every account, fed by the event
// listener and read by the remote chat commands.
type StatusBoard struct {
	mu       sync.RWMutex
	accounts map[string]AccountStatus
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{accounts: make(map[string]AccountStatus)}
}

func (s *StatusBoard) Handle(_ context.Context, e event.Event) error {
	var stage string
	switch evt := e.(type) {
	case event.StageChangedEvent:
		stage = evt.Stage
	case event.GameExitedEvent:
		stage = "Exited"
	case event.PatchProgressEvent:
		stage = "Patching"
	default:
		return nil
	}

	s.mu.Lock()
	s.accounts[e.Account()] = AccountStatus{Stage: stage, Message: e.Message(), UpdatedAt: e.OccurredAt()}
	s.mu.Unlock()

	return nil
}

func (s *StatusBoard) Get(account string) (AccountStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.accounts[account]
	return st, ok
}

// Summary renders one line per account, sorted by name.
func (s *StatusBoard) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.accounts) == 0 {
		return "No login attempts yet"
	}

	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		st := s.accounts[name]
		fmt.Fprintf(&b, "%s: %s (%s)\n", name, st.Stage, st.UpdatedAt.Format(time.Kitchen))
	}

	return strings.TrimSuffix(b.String(), "\n")
}
