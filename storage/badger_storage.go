package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps each table under its own key prefix in a badger
// database. An empty data directory opens an in-memory database.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ Backend = (*BadgerStore)(nil)

func NewBadgerStore(dataDir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		opts = badger.DefaultOptions(dataDir)
	}
	opts = opts.
		WithLogger(&badgerLogger{logger: logger}).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func badgerKey(table string, id uint64) []byte {
	return append(badgerPrefix(table), encodeID(id)...)
}

func badgerPrefix(table string) []byte {
	return []byte(table + "/")
}

func (s *BadgerStore) Get(_ context.Context, table string, id uint64) ([]byte, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(table, id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BadgerStore) Put(_ context.Context, table string, id uint64, data []byte) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(table, id), copyBytes(data))
	})
}

func (s *BadgerStore) Scan(ctx context.Context, table string, fn func(id uint64, data []byte) error) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	prefix := badgerPrefix(table)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(decodeID(bytes.TrimPrefix(key, prefix)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...), "component", "badger")
}

func (l *badgerLogger) Infof(msg string, args ...any) {
	l.logger.Info(fmt.Sprintf(msg, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...), "component", "badger")
}
