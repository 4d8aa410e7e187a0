// Package database opens the SQL databases used as the rates source and the durable store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver registration
	_ "modernc.org/sqlite"             // sqlite driver registration
)

// Supported drivers.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Pool holds connection pool settings.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPool returns the pool settings for driver. A sqlite file takes one writer at a time.
func DefaultPool(driver string) Pool {
	if driver == DriverSQLite {
		return Pool{MaxOpenConns: 1, MaxIdleConns: 1}
	}
	return Pool{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: 300 * time.Second}
}

// Open opens a database connection with the default pool for driver and pings it.
// sqlite databases are switched to WAL mode.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	pool := DefaultPool(driver)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	return db, nil
}

// Rebind rewrites ? placeholders to $n for the pgx driver. Statements must not
// carry a literal ? inside quoted text.
func Rebind(driver, stmt string) string {
	if driver != DriverPostgres {
		return stmt
	}
	var b strings.Builder
	n := 0
	for _, r := range stmt {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
