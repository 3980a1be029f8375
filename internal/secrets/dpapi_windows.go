//go:build windows

package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/billgraziano/dpapi"
	"gopkg.in/yaml.v3"
)

// DPAPIStore encrypts every value with the current Windows user's DPAPI key
// and keeps the blobs in a YAML file.
type DPAPIStore struct {
	mu   sync.Mutex
	path string
}

func openDPAPI(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("secrets: create directory: %w", err)
	}
	return &DPAPIStore{path: path}, nil
}

func (s *DPAPIStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, err := s.read()
	if err != nil {
		return "", false, err
	}
	blob, ok := blobs[key]
	if !ok {
		return "", false, nil
	}

	value, err := dpapi.Decrypt(blob)
	if err != nil {
		return "", false, fmt.Errorf("secrets: dpapi decrypt %q: %w", key, err)
	}
	return value, true, nil
}

func (s *DPAPIStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, err := s.read()
	if err != nil {
		return err
	}
	blob, err := dpapi.Encrypt(value)
	if err != nil {
		return fmt.Errorf("secrets: dpapi encrypt %q: %w", key, err)
	}
	blobs[key] = blob

	return s.write(blobs)
}

func (s *DPAPIStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := blobs[key]; !ok {
		return nil
	}
	delete(blobs, key)

	return s.write(blobs)
}

func (s *DPAPIStore) read() (map[string]string, error) {
	blobs := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return blobs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secrets: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &blobs); err != nil {
		return nil, fmt.Errorf("secrets: parse %s: %w", s.path, err)
	}
	return blobs, nil
}

func (s *DPAPIStore) write(blobs map[string]string) error {
	data, err := yaml.Marshal(blobs)
	if err != nil {
		return fmt.Errorf("secrets: encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("secrets: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("secrets: replace %s: %w", s.path, err)
	}
	return nil
}
