package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ratefeed/internal/database"
)

var _ Store = (*SQLStore)(nil)

// SQLStore keeps values in the kv_entries table of a sqlite file or a Postgres database.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens the database, enables WAL for sqlite and runs migrations.
func OpenSQLStore(ctx context.Context, driver, dsn string, logger *zap.SugaredLogger) (*SQLStore, error) {
	db, err := database.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	if err := RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run kv migrations: %w", err)
	}

	logger.Infow("Key-value store opened", "driver", driver)
	return &SQLStore{db: db, driver: driver}, nil
}

func (s *SQLStore) placeholders(stmt string) string {
	return database.Rebind(s.driver, stmt)
}

// Get returns the value stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.placeholders(`SELECT value FROM kv_entries WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	stmt := s.placeholders(`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, stmt, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
