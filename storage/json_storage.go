package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore keeps tables in memory and rewrites a table's JSON file on every
// change. Files are replaced atomically through a temporary file.
type JSONStore struct {
	basePath string
	mu       sync.Mutex
	mem      *MemoryStore
}

var _ Backend = (*JSONStore)(nil)

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	store := &JSONStore{
		basePath: basePath,
		mem:      NewMemoryStore(),
	}

	for _, table := range allTables {
		records, err := store.loadTableFromFile(table)
		if err != nil {
			return nil, fmt.Errorf("failed to load table %s: %w", table, err)
		}
		for id, data := range records {
			if err := store.mem.Put(context.Background(), table, id, data); err != nil {
				return nil, err
			}
		}
	}

	return store, nil
}

func (s *JSONStore) Get(ctx context.Context, table string, id uint64) ([]byte, error) {
	return s.mem.Get(ctx, table, id)
}

func (s *JSONStore) Put(ctx context.Context, table string, id uint64, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("refusing to store non-JSON value in %s", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.mem.Get(ctx, table, id)
	hadPrevious := err == nil
	if err := s.mem.Put(ctx, table, id, data); err != nil {
		return err
	}

	if err := s.saveTableToFile(ctx, table); err != nil {
		// Keep memory consistent with what is on disk
		if hadPrevious {
			if rbErr := s.mem.Put(ctx, table, id, previous); rbErr != nil {
				return errors.Join(err, fmt.Errorf("failed to roll back %s id=%d: %w", table, id, rbErr))
			}
		} else {
			s.mem.delete(table, id)
		}
		return err
	}
	return nil
}

func (s *JSONStore) Scan(ctx context.Context, table string, fn func(id uint64, data []byte) error) error {
	return s.mem.Scan(ctx, table, fn)
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) tablePath(table string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s.json", table))
}

func (s *JSONStore) loadTableFromFile(table string) (map[uint64]json.RawMessage, error) {
	data, err := os.ReadFile(s.tablePath(table))
	if err != nil {
		if os.IsNotExist(err) {
			return map[uint64]json.RawMessage{}, nil
		}
		return nil, err
	}

	var records map[uint64]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal table: %w", err)
	}
	return records, nil
}

func (s *JSONStore) saveTableToFile(ctx context.Context, table string) error {
	records := make(map[uint64]json.RawMessage)
	err := s.mem.Scan(ctx, table, func(id uint64, data []byte) error {
		records[id] = json.RawMessage(data)
		return nil
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal table %s: %w", table, err)
	}

	path := s.tablePath(table)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write table file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save table file: %w", err)
	}

	return nil
}
