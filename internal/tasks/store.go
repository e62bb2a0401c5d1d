package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the full task table. Save replaces everything previously
// saved; Load returns the records in saved order.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// JSONStore keeps the task table as a single JSON array on disk.
type JSONStore struct {
	path string
}

// NewJSONStore returns a store writing to path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the file the store writes to.
func (s *JSONStore) Path() string { return s.path }

// Load reads the table. A missing file yields no records. Records that fail
// to decode are skipped and reported in the returned error together with the
// records that did decode.
func (s *JSONStore) Load(_ context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tasks: read %s: %w", s.path, err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("tasks: decode %s: %w", s.path, err)
	}
	return decodeRecords(raw)
}

// Save writes the table atomically through a temp file and rename.
func (s *JSONStore) Save(_ context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("tasks: encode: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("tasks: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("tasks: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("tasks: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("tasks: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("tasks: rename to %s: %w", s.path, err)
	}
	return nil
}

func decodeRecords(raw []json.RawMessage) ([]Record, error) {
	out := make([]Record, 0, len(raw))
	var errs []error
	for i, item := range raw {
		var rec Record
		if err := json.Unmarshal(item, &rec); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		if rec.ID == "" {
			errs = append(errs, fmt.Errorf("record %d: missing id", i))
			continue
		}
		if rec.Status == "" {
			rec.Status = StatusPending
		}
		out = append(out, rec)
	}
	return out, errors.Join(errs...)
}
