package storage

import (
	"context"
	"encoding/binary"
	"errors"
)

// Table names shared by every backend.
const (
	TableElections = "elections"
	TableVoters    = "voters"
	TableVotes     = "votes"
	TableBallots   = "ballots"
	tableMeta      = "meta"
)

var allTables = []string{TableElections, TableVoters, TableVotes, TableBallots, tableMeta}

var (
	ErrNotFound       = errors.New("record not found")
	ErrUnknownTable   = errors.New("unknown table")
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrIDExhausted    = errors.New("identifier space exhausted")
)

// Backend is a byte-level keyed store holding one keyspace per table.
// Scan visits records in ascending id order and works on a snapshot.
type Backend interface {
	Get(ctx context.Context, table string, id uint64) ([]byte, error)
	Put(ctx context.Context, table string, id uint64, data []byte) error
	Scan(ctx context.Context, table string, fn func(id uint64, data []byte) error) error
	Close() error
}

func knownTable(table string) bool {
	for _, t := range allTables {
		if t == table {
			return true
		}
	}
	return false
}

func encodeID(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func decodeID(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
