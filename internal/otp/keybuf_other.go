//go:build !linux

package otp

import (
	"fmt"
	"sync"
)

// keyBuffer on platforms without the mmap path: a private heap copy that is
// zeroed on release.
type keyBuffer struct {
	mu   sync.Mutex
	data []byte
}

func newKeyBuffer(src []byte) (*keyBuffer, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("otp: empty key")
	}
	b := &keyBuffer{data: make([]byte, len(src))}
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
	wipe(b.data)
	b.data = nil

	return nil
}

func wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
