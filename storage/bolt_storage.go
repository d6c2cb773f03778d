package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const boltFileName = "elections.db"

// BoltStore maps each table onto a bolt bucket keyed by big-endian id.
type BoltStore struct {
	db *bolt.DB
}

var _ Backend = (*BoltStore)(nil)

func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	path := filepath.Join(dataDir, boltFileName)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB (%s): %w", path, err)
	}

	err = db.Update(func(btx *bolt.Tx) error {
		for _, table := range allTables {
			if _, err := btx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(_ context.Context, table string, id uint64) ([]byte, error) {
	var data []byte
	err := s.db.View(func(btx *bolt.Tx) error {
		bucket := btx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		value := bucket.Get(encodeID(id))
		if value == nil {
			return ErrNotFound
		}
		// bolt values are only valid inside the transaction
		data = copyBytes(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) Put(_ context.Context, table string, id uint64, data []byte) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		bucket := btx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		return bucket.Put(encodeID(id), copyBytes(data))
	})
}

func (s *BoltStore) Scan(ctx context.Context, table string, fn func(id uint64, data []byte) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		bucket := btx.Bucket([]byte(table))
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		return bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(decodeID(k), copyBytes(v))
		})
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
