package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"solana-pool-cycler/internal/observability"
)

// FileStore keeps the cycle record in a single JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file path. The file
// is created on first read if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// Read loads the record from disk. A missing file yields the default
// record, which is persisted immediately so later reads agree.
func (s *FileStore) Read(ctx context.Context) (*CycleRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		record := Default()
		if writeErr := s.Write(ctx, record); writeErr != nil {
			return nil, writeErr
		}
		return record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file %s: %w", s.path, err)
	}

	var record CycleRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	return &record, nil
}

// Write persists the record atomically via a temp file and rename.
func (s *FileStore) Write(_ context.Context, record *CycleRecord) error {
	err := s.write(record)
	observability.RecordStateWrite(err)
	if err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

func (s *FileStore) write(record *CycleRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
