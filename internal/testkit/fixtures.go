package testkit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ratefeed/internal/query"
)

// Rate is one provider row. A nil TimeLastUpdateUTC or ExchangeRate is stored as NULL.
type Rate struct {
	ID                int64
	Currency          string
	At                time.Time
	TimeLastUpdateUTC *string
	ExchangeRate      *float64
}

// NewRate builds a well-formed row observed at at.
func NewRate(id int64, code string, at time.Time, rate float64) Rate {
	ts := query.FormatUTC(at.UnixMilli())
	return Rate{ID: id, Currency: code, At: at, TimeLastUpdateUTC: &ts, ExchangeRate: &rate}
}

// CreateRatesTable creates the provider table read by the SQL source, on Postgres.
func CreateRatesTable(ctx context.Context, db *sql.DB, table string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGINT PRIMARY KEY,
		currency TEXT NOT NULL,
		time_last_update_utc TEXT,
		updated_at_millis BIGINT NOT NULL,
		exchange_rate DOUBLE PRECISION
	)`, table))
	if err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// SeedRates empties table and inserts rates.
func SeedRates(ctx context.Context, db *sql.DB, table string, rates ...Rate) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table)); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (id, currency, time_last_update_utc, updated_at_millis, exchange_rate)
		VALUES ($1, $2, $3, $4, $5)`, table)
	for _, r := range rates {
		if _, err = tx.ExecContext(ctx, stmt, r.ID, r.Currency, r.TimeLastUpdateUTC, r.At.UnixMilli(), r.ExchangeRate); err != nil {
			return fmt.Errorf("insert rate %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}
