package secrets

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
)

const (
	BackendSQLite = "sqlite"
	BackendDPAPI  = "dpapi"
	BackendMemory = "memory"
)

// Open returns the configured backend rooted at dir. An empty backend picks
// DPAPI on Windows and SQLite everywhere else.
func Open(ctx context.Context, backend, dir string) (Store, error) {
	if backend == "" {
		backend = BackendSQLite
		if runtime.GOOS == "windows" {
			backend = BackendDPAPI
		}
	}

	switch backend {
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(dir, "secrets.db"))
	case BackendDPAPI:
		return openDPAPI(filepath.Join(dir, "secrets.yaml"))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown secret store backend %q", backend)
	}
}
