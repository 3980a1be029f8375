package otp

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSecret is returned when a secret is not valid unpadded base32.
var ErrInvalidSecret = errors.New("invalid otp secret")

var rawEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Decode turns a base32 secret (RFC 4648 alphabet, any case, optional spaces or
// trailing padding) into the raw key bytes.
func Decode(secret string) ([]byte, error) {
	normalized := normalizeSecret(secret)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidSecret)
	}

	for i, r := range normalized {
		if !(r >= 'A' && r <= 'Z') && !(r >= '2' && r <= '7') {
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrInvalidSecret, r, i)
		}
	}

	key, err := rawEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: secret decodes to zero bytes", ErrInvalidSecret)
	}

	return key, nil
}

// Encode returns the unpadded, upper case base32 form of key.
func Encode(key []byte) string {
	return rawEncoding.EncodeToString(key)
}

func normalizeSecret(secret string) string {
	s := strings.ToUpper(secret)
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimRight(s, "=")
}
