package storage

import (
	"fmt"
	"log/slog"

	"election-backend/models"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendJSON     = "json"
	BackendBadger   = "badger"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Options struct {
	Backend string
	// Path is the data directory for file-backed engines
	Path   string
	DSN    string
	Logger *slog.Logger
}

// Store is the root of persisted state: one typed table per entity kind plus
// the shared identifier counter.
type Store struct {
	Elections *Table[models.Election]
	Voters    *Table[models.Voter]
	Votes     *Table[models.Vote]
	Ballots   *Table[models.Ballot]
	IDs       *IDGenerator

	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{
		Elections: NewTable[models.Election](TableElections, backend),
		Voters:    NewTable[models.Voter](TableVoters, backend),
		Votes:     NewTable[models.Vote](TableVotes, backend),
		Ballots:   NewTable[models.Ballot](TableBallots, backend),
		IDs:       NewIDGenerator(backend),
		backend:   backend,
	}
}

func Open(opts Options) (*Store, error) {
	backend, err := openBackend(opts)
	if err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		opts.Logger.Info(
			"storage opened",
			"component", "storage",
			"backend", opts.Backend,
			"path", opts.Path,
		)
	}
	return NewStore(backend), nil
}

func openBackend(opts Options) (Backend, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendJSON:
		return NewJSONStore(opts.Path)
	case BackendBadger:
		return NewBadgerStore(opts.Path, opts.Logger)
	case BackendBolt:
		return NewBoltStore(opts.Path)
	case BackendSQLite:
		return NewSQLiteStore(opts.Path)
	case BackendPostgres:
		return NewPostgresStore(opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func (s *Store) Close() error {
	return s.backend.Close()
}
