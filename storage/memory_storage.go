package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps every table in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[uint64][]byte
}

var _ Backend = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		tables: make(map[string]map[uint64][]byte),
	}
	for _, table := range allTables {
		store.tables[table] = make(map[uint64][]byte)
	}
	return store
}

func (s *MemoryStore) Get(_ context.Context, table string, id uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	data, ok := records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(data), nil
}

func (s *MemoryStore) Put(_ context.Context, table string, id uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	records[id] = copyBytes(data)
	return nil
}

func (s *MemoryStore) Scan(ctx context.Context, table string, fn func(id uint64, data []byte) error) error {
	ids, snapshot, err := s.snapshot(table)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// snapshot copies a table so callbacks run without holding the lock.
func (s *MemoryStore) snapshot(table string) ([]uint64, map[uint64][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.tables[table]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	ids := make([]uint64, 0, len(records))
	snapshot := make(map[uint64][]byte, len(records))
	for id, data := range records {
		ids = append(ids, id)
		snapshot[id] = copyBytes(data)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, snapshot, nil
}

func copyBytes(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func (s *MemoryStore) delete(table string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], id)
}
