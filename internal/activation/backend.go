package activation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Backend is durable blob storage keyed by name.
type Backend interface {
	// Load returns ok=false when nothing has been stored under key.
	Load(key string) (data []byte, ok bool, err error)
	Save(key string, data []byte) error
}

// FileBackend keeps one JSON file per key under a data directory.
type FileBackend struct {
	dir string
}

func NewFileBackend(dataDir string) (*FileBackend, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("data dir is empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dataDir}, nil
}

func (b *FileBackend) Path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

func (b *FileBackend) Load(key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Save writes through a temp file so a crash never leaves a torn file behind.
func (b *FileBackend) Save(key string, data []byte) error {
	path := b.Path(key)
	tmp, err := os.CreateTemp(b.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

type MemoryBackend struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int
	err   error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: map[string][]byte{}}
}

func (b *MemoryBackend) Load(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	return append([]byte(nil), data...), ok, nil
}

func (b *MemoryBackend) Save(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.blobs[key] = append([]byte(nil), data...)
	b.saves++
	return nil
}

// Saves counts successful writes.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// FailSaves makes Save return err until called with nil.
func (b *MemoryBackend) FailSaves(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}
