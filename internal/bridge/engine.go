package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hectorgimenez/koolaunch/internal/patch"
)

type failedFrame struct {
	Entry   patch.Entry          `cbor:"entry"`
	Context patch.FailureContext `cbor:"context"`
}

type applyRequest struct {
	Strategy       string        `cbor:"strategy"`
	SpeedLimit     int64         `cbor:"speed_limit"`
	Repository     string        `cbor:"repository"`
	Patches        []patch.Entry `cbor:"patches"`
	GamePath       string        `cbor:"game_path"`
	PatchCachePath string        `cbor:"patch_cache_path"`
	Installer      string        `cbor:"installer,omitempty"`
	Launcher       string        `cbor:"launcher,omitempty"`
	SessionID      string        `cbor:"session_id,omitempty"`
	Resume         bool          `cbor:"resume"`
}

// Engine is a patch.Engine whose live state is fed by the helper's progress
// frames.
type Engine struct {
	client *Client
	cfg    patch.EngineConfig

	index     atomic.Int64
	remaining atomic.Int64

	mu       sync.RWMutex
	speeds   []int64
	onFailed func(patch.Entry, patch.FailureContext)
}

// NewEngineFactory returns a patch.EngineFactory backed by client.
func NewEngineFactory(client *Client) patch.EngineFactory {
	return func(cfg patch.EngineConfig) (patch.Engine, error) {
		if client.path == "" {
			return nil, fmt.Errorf("%w: no helper executable configured", patch.ErrInstallerStart)
		}
		e := &Engine{client: client, cfg: cfg}
		e.remaining.Store(-1)

		return e, nil
	}
}

func (e *Engine) CurrentIndex() int {
	return int(e.index.Load())
}

func (e *Engine) Downloads() []patch.Entry {
	return e.cfg.Patches
}

func (e *Engine) AllDownloadsLength() int64 {
	return e.remaining.Load()
}

func (e *Engine) Speeds() []int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]int64, len(e.speeds))
	copy(out, e.speeds)

	return out
}

func (e *Engine) OnFailed(fn func(patch.Entry, patch.FailureContext)) {
	e.mu.Lock()
	e.onFailed = fn
	e.mu.Unlock()
}

func (e *Engine) Apply(ctx context.Context, resume bool) error {
	req := applyRequest{
		Strategy:       string(e.cfg.Strategy),
		SpeedLimit:     e.cfg.SpeedLimit,
		Repository:     e.cfg.Repository,
		Patches:        e.cfg.Patches,
		GamePath:       e.cfg.GamePath,
		PatchCachePath: e.cfg.PatchCachePath,
		Installer:      e.cfg.Installer,
		Launcher:       e.cfg.Launcher,
		SessionID:      e.cfg.SessionID,
		Resume:         resume,
	}

	err := e.client.call(ctx, opPatchApply, req, nil, e.handleFrame)

	return mapPatchError(err)
}

func (e *Engine) handleFrame(f frame) {
	switch {
	case f.Progress != nil:
		e.index.Store(int64(f.Progress.CurrentIndex))
		e.remaining.Store(f.Progress.AllDownloadsLength)
		e.mu.Lock()
		e.speeds = f.Progress.Speeds
		e.mu.Unlock()
	case f.Failed != nil:
		e.mu.RLock()
		fn := e.onFailed
		e.mu.RUnlock()
		if fn != nil {
			fn(f.Failed.Entry, f.Failed.Context)
		}
	}
}

func mapPatchError(err error) error {
	var re *RemoteError
	if !errors.As(err, &re) {
		return err
	}

	switch re.Code {
	case CodeInstallerStart:
		return fmt.Errorf("%w: %s", patch.ErrInstallerStart, re.Message)
	case CodeNotEnoughSpace:
		scope := patch.ScopePending
		switch re.Scope {
		case "all_queued":
			scope = patch.ScopeAllQueued
		case "installed_game":
			scope = patch.ScopeInstalledGame
		}
		return patch.SpaceError(scope, re.Required, re.Available)
	default:
		return err
	}
}
