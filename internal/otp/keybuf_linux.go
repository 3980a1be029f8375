//go:build linux

package otp

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// keyBuffer keeps the decoded key outside the Go heap: an anonymous mapping,
// locked against swap where the rlimit allows it and excluded from core dumps.
// release zeroes and unmaps it, so no copy survives.
type keyBuffer struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

func newKeyBuffer(src []byte) (*keyBuffer, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("otp: empty key")
	}

	data, err := unix.Mmap(-1, 0, len(src), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("otp: mmap key buffer: %w", err)
	}

	b := &keyBuffer{data: data}
	// RLIMIT_MEMLOCK is often tiny in containers; an unlocked buffer is still erased on release.
	if err := unix.Mlock(data); err == nil {
		b.locked = true
	}
	_ = unix.Madvise(data, unix.MADV_DONTDUMP)

	copy(b.data, src)
	wipe(src)

	return b, nil
}

func (b *keyBuffer) use(fn func(key []byte)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return false
	}
	fn(b.data)
	return true
}

func (b *keyBuffer) release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil
	}

	wipe(b.data)

	var firstErr error
	if b.locked {
		if err := unix.Munlock(b.data); err != nil {
			firstErr = fmt.Errorf("otp: munlock: %w", err)
		}
	}
	if err := unix.Munmap(b.data); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("otp: munmap: %w", err)
	}
	b.data = nil

	return firstErr
}

func wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
