package otp

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"
)

// "12345678901234567890", the RFC 4226 / RFC 6238 SHA1 test key.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestHOTPReferenceVectors(t *testing.T) {
	key, err := Decode(rfcSecret)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	expected := []string{"755224", "287082", "359152", "969429", "338314", "254676", "287922", "162583", "399871", "520489"}
	for counter, want := range expected {
		if got := HOTP(key, uint64(counter)); got != want {
			t.Errorf("HOTP(counter=%d) = %s, want %s", counter, got, want)
		}
	}
}

func TestTOTPReferenceVectors(t *testing.T) {
	key, err := Decode(rfcSecret)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Last six digits of the RFC 6238 appendix B SHA1 column.
	tests := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, tc := range tests {
		if got := TOTP(key, time.Unix(tc.unix, 0)); got != tc.want {
			t.Errorf("TOTP(%d) = %s, want %s", tc.unix, got, tc.want)
		}
	}
}

func TestTOTPStableWithinStep(t *testing.T) {
	key, err := Decode("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	base := time.Unix(1_700_000_010, 0) // first second of a step
	first := TOTP(key, base)
	for offset := 1; offset < 20; offset++ {
		if got := TOTP(key, base.Add(time.Duration(offset)*time.Second)); got != first {
			t.Fatalf("code changed inside the same step at +%ds: %s != %s", offset, got, first)
		}
	}
	if len(first) != Digits {
		t.Fatalf("expected %d digits, got %q", Digits, first)
	}
}

func TestSecondsRemaining(t *testing.T) {
	tests := map[int64]int{0: 30, 1: 29, 29: 1, 30: 30, 59: 1}
	for unix, want := range tests {
		if got := SecondsRemaining(time.Unix(unix, 0)); got != want {
			t.Errorf("SecondsRemaining(%d) = %d, want %d", unix, got, want)
		}
	}
}

func TestDecodeKnownSecret(t *testing.T) {
	key, err := Decode("jbsw y3dp ehpk 3pxp")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []byte{'H', 'e', 'l', 'l', 'o', '!', 0xde, 0xad, 0xbe, 0xef}
	if !bytes.Equal(key, want) {
		t.Fatalf("got %x, want %x", key, want)
	}
}

func TestDecodeRejectsUnknownCharacters(t *testing.T) {
	for _, secret := range []string{"JBSWY3DPEHPK3PX1", "JBSWY3DP!HPK3PXP", "0000", ""} {
		if _, err := Decode(secret); err == nil {
			t.Errorf("expected %q to be rejected", secret)
		}
	}
}

func TestDecodeIsInverseOfEncode(t *testing.T) {
	for size := 1; size <= 64; size++ {
		src := make([]byte, size)
		if _, err := rand.Read(src); err != nil {
			t.Fatalf("rand: %v", err)
		}

		encoded := Encode(src)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("size %d: decode %q: %v", size, encoded, err)
		}
		if !bytes.Equal(decoded, src) {
			t.Fatalf("size %d: round trip mismatch", size)
		}

		padded, err := Decode(encoded + "======")
		if err != nil || !bytes.Equal(padded, src) {
			t.Fatalf("size %d: trailing padding not ignored: %v", size, err)
		}
	}
}
