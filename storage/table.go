package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Table is a typed view over one backend keyspace. Values are stored as JSON.
type Table[T any] struct {
	name    string
	backend Backend
}

func NewTable[T any](name string, backend Backend) *Table[T] {
	return &Table[T]{name: name, backend: backend}
}

func (t *Table[T]) Get(ctx context.Context, id uint64) (T, error) {
	var value T
	data, err := t.backend.Get(ctx, t.name, id)
	if err != nil {
		return value, fmt.Errorf("%s id=%d: %w", t.name, id, err)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to decode %s id=%d: %w", t.name, id, err)
	}
	return value, nil
}

func (t *Table[T]) Put(ctx context.Context, id uint64, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s id=%d: %w", t.name, id, err)
	}
	if err := t.backend.Put(ctx, t.name, id, data); err != nil {
		return fmt.Errorf("failed to save %s id=%d: %w", t.name, id, err)
	}
	return nil
}

// Scan returns every stored value. Callers must not depend on the order.
func (t *Table[T]) Scan(ctx context.Context) ([]T, error) {
	values := make([]T, 0)
	err := t.backend.Scan(ctx, t.name, func(id uint64, data []byte) error {
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("failed to decode %s id=%d: %w", t.name, id, err)
		}
		values = append(values, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}
