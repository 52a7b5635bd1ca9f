package resetcode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores all entries in one JSON document keyed by email.
// The file is read once and rewritten atomically on every change.
type FileBackend struct {
	path string

	mu      sync.Mutex
	loaded  bool
	entries map[string]Entry
}

func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("resetcode: file path is required")
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Load(_ context.Context, email string) (Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return Entry{}, false, err
	}
	e, ok := f.entries[email]
	return e, ok, nil
}

func (f *FileBackend) Save(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	prev, had := f.entries[e.Email]
	f.entries[e.Email] = e
	if err := f.flush(); err != nil {
		if had {
			f.entries[e.Email] = prev
		} else {
			delete(f.entries, e.Email)
		}
		return err
	}
	return nil
}

func (f *FileBackend) Delete(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoaded(); err != nil {
		return err
	}
	prev, had := f.entries[email]
	if !had {
		return nil
	}
	delete(f.entries, email)
	if err := f.flush(); err != nil {
		f.entries[email] = prev
		return err
	}
	return nil
}

func (f *FileBackend) ensureLoaded() error {
	if f.loaded {
		return nil
	}
	f.entries = make(map[string]Entry)
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read reset codes: %w", err)
	case len(data) > 0:
		if err := json.Unmarshal(data, &f.entries); err != nil {
			return fmt.Errorf("decode reset codes: %w", err)
		}
	}
	for email, e := range f.entries {
		e.Email = email
		f.entries[email] = e
	}
	f.loaded = true
	return nil
}

func (f *FileBackend) flush() error {
	data, err := json.MarshalIndent(f.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reset codes: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create reset code dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".reset-codes-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write reset codes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close reset codes: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace reset codes: %w", err)
	}
	return nil
}
