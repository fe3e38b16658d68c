package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/nutrifit-client/internal/infra/logging"
)

// ErrStoreBusy is returned when the database stayed locked beyond the busy timeout.
var ErrStoreBusy = errors.New("credential store busy")

// SQLiteStoreConfig holds configuration for the SQLite credential store.
type SQLiteStoreConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/credentials.db"`

	// BusyTimeout bounds how long a write waits for a concurrent writer
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" default:"5s"`
}

// SQLiteStore implements Store using SQLite as the storage backend.
type SQLiteStore struct {
	db        *sqlx.DB
	sealer    *Sealer
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Store = (*SQLiteStore)(nil)

type credentialRow struct {
	Key       string `db:"key"`
	Value     []byte `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

// SQLiteStoreFactory creates a factory function that returns a new SQLiteStore.
func SQLiteStoreFactory(cfg SQLiteStoreConfig, sealer *Sealer) StoreFactory {
	return func(ctx context.Context) (Store, error) {
		return NewSQLiteStore(ctx, cfg, sealer)
	}
}

// NewSQLiteStore opens the database at cfg.DatabasePath and creates the schema if needed.
func NewSQLiteStore(ctx context.Context, cfg SQLiteStoreConfig, sealer *Sealer) (*SQLiteStore, error) {
	log := logging.GetLogger("repo.credential.sqlite_store").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir all: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", dataSourceName(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := initializeDB(ctx, db); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	log.DebugContext(ctx, "store opened")

	return &SQLiteStore{
		db:        db,
		sealer:    sealer,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

// dataSourceName carries the pragmas in the DSN so the driver applies them to
// every pooled connection, not only to the first one.
func dataSourceName(cfg SQLiteStoreConfig) string {
	pragmas := url.Values{}
	pragmas.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))

	return cfg.DatabasePath + "?" + pragmas.Encode()
}

func initializeDB(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credentials (
			key        TEXT    PRIMARY KEY,
			value      BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get implements Store.Get using SQLite.
func (s *SQLiteStore) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	var row credentialRow

	err = s.db.GetContext(ctx, &row, "SELECT key, value, updated_at FROM credentials WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("query credential: %w", mapSQLiteError(err))
	}

	plaintext, err := s.sealer.Open(key, row.Value)
	if err != nil {
		s.log.WarnContext(ctx, "credential unreadable", "key", key, "error", err)

		return "", false, fmt.Errorf("open credential: %w", err)
	}

	return string(plaintext), true, nil
}

// Set implements Store.Set using an upsert.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	sealed, err := s.sealer.Seal(key, []byte(value))
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO credentials (key, value, updated_at) VALUES (:key, :value, :updated_at)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, credentialRow{Key: key, Value: sealed, UpdatedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("upsert credential: %w", mapSQLiteError(err))
	}

	s.log.DebugContext(ctx, "credential stored", "key", key)

	return nil
}

// Delete implements Store.Delete using SQLite.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete credential: %w", mapSQLiteError(err))
	}

	s.log.DebugContext(ctx, "credential deleted", "key", key)

	return nil
}

// Close implements Store.Close by closing the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

func mapSQLiteError(err error) error {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff { // primary result code
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errors.Join(ErrStoreBusy, err)
		default:
		}
	}

	return err
}
