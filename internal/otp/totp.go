package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// Step is the TOTP time step.
	Step = 30 * time.Second
	// Digits is the length of a generated code.
	Digits = 6

	modulus = 1_000_000
)

// HOTP computes the RFC 4226 code for key at counter.
func HOTP(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation: the low nibble of the last byte selects a 4 byte window.
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%0*d", Digits, value%modulus)
}

// Counter returns the RFC 6238 counter for t.
func Counter(t time.Time) uint64 {
	return uint64(t.Unix()) / uint64(Step/time.Second)
}

// TOTP computes the code valid at t.
func TOTP(key []byte, t time.Time) string {
	return HOTP(key, Counter(t))
}

// SecondsRemaining is how long the code valid at t stays valid.
func SecondsRemaining(t time.Time) int {
	step := int64(Step / time.Second)
	return int(step - t.Unix()%step)
}
