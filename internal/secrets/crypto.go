package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	masterKeySize = 32
	keyFileName   = ".secrets.key"
	// encPrefix marks values written by this store.
	encPrefix = "enc:v1:"
)

var errMalformedValue = errors.New("malformed encrypted value")

// loadOrCreateMasterKey reads the master key next to the database, creating it
// on first use. Creation goes through a temp file and os.Link so concurrent
// launchers agree on a single key.
func loadOrCreateMasterKey(dir string) ([]byte, error) {
	keyPath := filepath.Join(dir, keyFileName)

	key, err := readMasterKey(keyPath)
	if err != nil || key != nil {
		return key, err
	}

	key = make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("secrets: generate master key: %w", err)
	}

	tmp, err := os.CreateTemp(dir, keyFileName+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("secrets: create master key temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(key); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("secrets: write master key: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("secrets: chmod master key: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("secrets: close master key: %w", err)
	}

	if err := os.Link(tmpPath, keyPath); err != nil {
		if os.IsExist(err) {
			return readMasterKey(keyPath)
		}
		return nil, fmt.Errorf("secrets: link master key: %w", err)
	}

	return key, nil
}

func readMasterKey(keyPath string) ([]byte, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("secrets: read master key: %w", err)
	}
	if len(data) != masterKeySize {
		return nil, fmt.Errorf("secrets: master key at %s has invalid size %d", keyPath, len(data))
	}
	return data, nil
}

// deriveKey binds the value key to a purpose so the master key is never used
// directly by the cipher.
func deriveKey(master []byte, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte("koolaunch/"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secrets: derive key: %w", err)
	}
	return key, nil
}

func encryptValue(key []byte, plaintext string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptValue(key []byte, value string) (string, error) {
	if !strings.HasPrefix(value, encPrefix) {
		return "", errMalformedValue
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errMalformedValue, err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errMalformedValue
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}

	return string(plain), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
