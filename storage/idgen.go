package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
)

const counterKey uint64 = 1

// IDGenerator hands out strictly increasing identifiers shared by every
// entity kind. The first identifier is 1. The counter is persisted before an
// identifier is returned, so a failed write never yields a reusable id.
type IDGenerator struct {
	mu      sync.Mutex
	backend Backend
	next    uint64
	loaded  bool
}

func NewIDGenerator(backend Backend) *IDGenerator {
	return &IDGenerator{backend: backend}
}

func (g *IDGenerator) NextID(ctx context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.loaded {
		if err := g.load(ctx); err != nil {
			return 0, err
		}
	}

	id := g.next
	if id == math.MaxUint64 {
		return 0, ErrIDExhausted
	}

	data, err := json.Marshal(id + 1)
	if err != nil {
		return 0, fmt.Errorf("failed to encode id counter: %w", err)
	}
	if err := g.backend.Put(ctx, tableMeta, counterKey, data); err != nil {
		return 0, fmt.Errorf("failed to persist id counter: %w", err)
	}

	g.next = id + 1
	return id, nil
}

func (g *IDGenerator) load(ctx context.Context) error {
	data, err := g.backend.Get(ctx, tableMeta, counterKey)
	if errors.Is(err, ErrNotFound) {
		g.next = 1
		g.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load id counter: %w", err)
	}

	var next uint64
	if err := json.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("id counter is corrupt: %w", err)
	}
	if next == 0 {
		return errors.New("id counter is corrupt: zero value")
	}
	g.next = next
	g.loaded = true
	return nil
}
