// Package storage keeps small JSON documents on disk, one file per key.
// The relay uses it to carry its event history across restarts.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage stores JSON documents under a base directory. A key is a path
// slice; ["relay", "history"] lives in <base>/relay/history.json.
type Storage struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// New creates a Storage rooted at basePath. The directory is created on
// the first write.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// Path returns the base directory.
func (s *Storage) Path() string {
	return s.basePath
}

func (s *Storage) file(key []string) string {
	return filepath.Join(append([]string{s.basePath}, key...)...) + ".json"
}

// Get decodes the document at key into v.
func (s *Storage) Get(ctx context.Context, key []string, v any) error {
	data, err := os.ReadFile(s.file(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", strings.Join(key, "/"), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", strings.Join(key, "/"), err)
	}
	return nil
}

// Put writes v at key. The write goes through a temp file and a rename
// under an exclusive lock, so readers never see a partial document.
func (s *Storage) Put(ctx context.Context, key []string, v any) error {
	path := s.file(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", strings.Join(key, "/"), err)
	}

	lock := s.lock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", strings.Join(key, "/"), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", strings.Join(key, "/"), err)
	}
	return nil
}

// Delete removes the document at key. A missing document is not an error.
func (s *Storage) Delete(ctx context.Context, key []string) error {
	path := s.file(key)

	lock := s.lock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", strings.Join(key, "/"), err)
	}
	return nil
}

// List returns the document names directly under prefix, sorted.
func (s *Storage) List(ctx context.Context, prefix []string) ([]string, error) {
	dir := filepath.Join(append([]string{s.basePath}, prefix...)...)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".json"); ok && !e.IsDir() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) lock(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[path]
	if !ok {
		l = NewFileLock(path)
		s.locks[path] = l
	}
	return l
}
