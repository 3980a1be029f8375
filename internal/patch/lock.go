package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hectorgimenez/koolaunch/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	LockFileName = "patch.lock"
	// foreignLockTTL is how long a lock owned by another host is honored.
	foreignLockTTL = 12 * time.Hour
	// takeoverTTL bounds how long a crashed process can block stale lock takeover.
	takeoverTTL = 30 * time.Second
)

var errLockHeld = errors.New("patch lock held by a live process")

type lockInfo struct {
	PID     int       `yaml:"pid"`
	Host    string    `yaml:"host"`
	Started time.Time `yaml:"started"`
	Token   string    `yaml:"token"`
}

// fileLock is a cross-process guard backed by a lock file created with
// os.Link, which fails atomically when the target exists on every platform.
//
// A stale lock is only removed by the holder of a second link-created guard
// file. The stale file is first renamed to a unique tombstone and judged
// again from the tombstone, so a lock written by another acquirer in the
// meantime is put back instead of deleted.
type fileLock struct {
	path     string
	hostname func() (string, error)
	alive    func(pid int) bool
	now      func() time.Time
}

func newFileLock(dir string) *fileLock {
	return &fileLock{
		path:     filepath.Join(dir, LockFileName),
		hostname: os.Hostname,
		alive:    utils.IsProcessAlive,
		now:      time.Now,
	}
}

// acquire takes the lock, removing a stale one once. The returned function
// releases it.
func (l *fileLock) acquire() (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("error creating patch cache dir: %w", err)
	}

	host, _ := l.hostname()
	info := lockInfo{PID: os.Getpid(), Host: host, Started: l.now().UTC(), Token: uuid.NewString()}

	for attempt := 0; attempt < 2; attempt++ {
		err := l.create(l.path, info)
		if err == nil {
			return l.releaseFunc(info), nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		owner, found, err := readLock(l.path)
		if err != nil {
			return nil, err
		}
		if found && l.held(owner, host) {
			return nil, errLockHeld
		}
		if err := l.takeOver(info, host); err != nil {
			return nil, err
		}
	}

	return nil, errLockHeld
}

// takeOver removes the current lock file if it is still stale once the
// takeover guard is held.
func (l *fileLock) takeOver(info lockInfo, host string) error {
	guard := l.path + ".takeover"
	err := l.create(guard, info)
	if errors.Is(err, os.ErrExist) && l.abandoned(guard) {
		_ = os.Remove(guard)
		err = l.create(guard, info)
	}
	if errors.Is(err, os.ErrExist) {
		// another process is taking over right now
		return errLockHeld
	}
	if err != nil {
		return err
	}
	defer os.Remove(guard)

	tomb := fmt.Sprintf("%s.stale-%s", l.path, info.Token)
	if err := os.Rename(l.path, tomb); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error removing stale patch lock: %w", err)
	}

	owner, found, err := readLock(tomb)
	if err == nil && found && l.held(owner, host) {
		// a live lock was written after the staleness check: put it back
		if linkErr := os.Link(tomb, l.path); linkErr != nil && !errors.Is(linkErr, os.ErrExist) {
			return fmt.Errorf("error restoring patch lock: %w", linkErr)
		}
		_ = os.Remove(tomb)
		return errLockHeld
	}

	if err := os.Remove(tomb); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing stale patch lock: %w", err)
	}

	return nil
}

// abandoned reports whether a takeover guard was left behind by a crashed process.
func (l *fileLock) abandoned(guard string) bool {
	st, err := os.Stat(guard)
	return err == nil && l.now().Sub(st.ModTime()) > takeoverTTL
}

func (l *fileLock) create(path string, info lockInfo) error {
	content, err := yaml.Marshal(info)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".patch-lock-*")
	if err != nil {
		return fmt.Errorf("error creating patch lock: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing patch lock: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing patch lock: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing patch lock: %w", err)
	}

	return os.Link(tmp.Name(), path)
}

// readLock parses a lock file. An unreadable or malformed file is reported as
// found with a zero owner, which held treats as stale.
func readLock(path string) (lockInfo, bool, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return lockInfo{}, false, nil
	}
	if err != nil {
		return lockInfo{}, false, fmt.Errorf("error reading patch lock: %w", err)
	}

	var owner lockInfo
	if err := yaml.Unmarshal(content, &owner); err != nil {
		return lockInfo{}, true, nil
	}

	return owner, true, nil
}

// held reports whether owner is a live lock holder.
func (l *fileLock) held(owner lockInfo, host string) bool {
	if owner.PID <= 0 {
		return false
	}
	if owner.Host == host {
		return l.alive(owner.PID)
	}

	return l.now().Sub(owner.Started) < foreignLockTTL
}

func (l *fileLock) releaseFunc(info lockInfo) func() error {
	return func() error {
		owner, found, err := readLock(l.path)
		if err != nil || !found {
			return err
		}
		if owner.Token != info.Token {
			// someone else took over a lock we no longer own
			return nil
		}

		return os.Remove(l.path)
	}
}
