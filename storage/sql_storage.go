package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const sqliteFileName = "elections.sqlite"

// record is the single relational table backing every keyspace.
type record struct {
	Kind string `gorm:"primaryKey;column:kind;size:32"`
	ID   uint64 `gorm:"primaryKey;column:id;autoIncrement:false"`
	Data []byte `gorm:"column:data;not null"`
}

func (record) TableName() string {
	return "records"
}

// SQLStore stores tables as rows of a gorm-managed relational table.
type SQLStore struct {
	db *gorm.DB
}

var _ Backend = (*SQLStore)(nil)

// NewSQLiteStore opens a SQLite database in dataDir. An empty dataDir opens a
// private in-memory database.
func NewSQLiteStore(dataDir string) (*SQLStore, error) {
	var dsn string
	if dataDir == "" {
		// Named so that pooled connections share one database, unique so
		// that separate stores never do
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
			filepath.Join(dataDir, sqliteFileName),
		)
	}
	store, err := newSQLStore(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}
	sqlDB, err := store.db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return store, nil
}

func NewPostgresStore(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres backend requires a DSN")
	}
	return newSQLStore(postgres.Open(dsn))
}

func newSQLStore(dialector gorm.Dialector) (*SQLStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, table string, id uint64) ([]byte, error) {
	if !knownTable(table) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var rec record
	result := s.db.WithContext(ctx).
		Where("kind = ? AND id = ?", table, id).
		Take(&rec)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return rec.Data, nil
}

func (s *SQLStore) Put(ctx context.Context, table string, id uint64, data []byte) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	rec := record{Kind: table, ID: id, Data: copyBytes(data)}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "kind"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data"}),
		}).
		Create(&rec)
	return result.Error
}

func (s *SQLStore) Scan(ctx context.Context, table string, fn func(id uint64, data []byte) error) error {
	if !knownTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	var recs []record
	result := s.db.WithContext(ctx).
		Where("kind = ?", table).
		Order("id").
		Find(&recs)
	if result.Error != nil {
		return result.Error
	}
	for _, rec := range recs {
		if err := fn(rec.ID, rec.Data); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
