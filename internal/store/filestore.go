package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/soimon/notion-todoist/internal/snapshot"
)

// fileState is the on-disk layout of a FileStore.
type fileState struct {
	Token    string    `json:"token,omitempty"`
	SyncedAt time.Time `json:"synced_at,omitzero"`
	Paused   bool      `json:"paused"`
}

// FileStore keeps the boundary and pause flag in a single JSON file. It has
// no pass log.
//
// Thread-safety: FileStore is safe for concurrent use within one process.
// Writes replace the file atomically, so a crash never leaves it half
// written.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// OpenFile returns a FileStore at path, creating its directory. The file
// itself is created on first write.
func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// LastSyncInfo returns the stored boundary.
func (f *FileStore) LastSyncInfo(context.Context) (snapshot.Boundary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.read()
	if err != nil {
		return snapshot.Boundary{}, err
	}
	return snapshot.Boundary{Token: st.Token, Date: st.SyncedAt}, nil
}

// SetLastSyncInfo replaces the stored boundary.
func (f *FileStore) SetLastSyncInfo(_ context.Context, token string, at time.Time) error {
	return f.update(func(st *fileState) {
		st.Token = token
		st.SyncedAt = at.UTC()
	})
}

// ResetLastSyncInfo forgets the boundary.
func (f *FileStore) ResetLastSyncInfo(context.Context) error {
	return f.update(func(st *fileState) {
		st.Token = ""
		st.SyncedAt = time.Time{}
	})
}

// IsPaused reports the pause flag.
func (f *FileStore) IsPaused(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.read()
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

// SetPaused sets the pause flag.
func (f *FileStore) SetPaused(_ context.Context, paused bool) error {
	return f.update(func(st *fileState) { st.Paused = paused })
}

// Close is a no-op; it exists so both stores share a lifecycle.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) update(fn func(*fileState)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.read()
	if err != nil {
		return err
	}
	fn(&st)
	return f.write(st)
}

func (f *FileStore) read() (fileState, error) {
	var st fileState
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decode state file %s: %w", f.path, err)
	}
	return st, nil
}

func (f *FileStore) write(st fileState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
