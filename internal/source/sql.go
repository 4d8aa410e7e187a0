package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"ratefeed/internal/database"
	"ratefeed/internal/query"
)

var _ Source = (*SQLSource)(nil)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLSource reads rows straight from the provider's backing table.
// Expected columns: id, currency, time_last_update_utc (text in query.Layout),
// updated_at_millis (UTC millis of the same instant) and exchange_rate.
type SQLSource struct {
	db     *sql.DB
	driver string
	table  string
}

// OpenSQLSource opens db with driver ("pgx" or "sqlite") and pings it.
func OpenSQLSource(ctx context.Context, driver, dsn, table string) (*SQLSource, error) {
	db, err := database.Open(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s source: %w", driver, err)
	}
	src, err := NewSQLSource(db, driver, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return src, nil
}

// NewSQLSource wraps an already opened database.
func NewSQLSource(db *sql.DB, driver, table string) (*SQLSource, error) {
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid source table name %q", table)
	}
	return &SQLSource{db: db, driver: driver, table: table}, nil
}

// Query selects the rows of one currency inside the requested window.
func (s *SQLSource) Query(ctx context.Context, req query.Request) (Cursor, error) {
	start, err := query.ParseUTC(req.Get(query.ParamStartDate))
	if err != nil {
		return nil, fmt.Errorf("rejected %s: %w", query.ParamStartDate, err)
	}
	end, err := query.ParseUTC(req.Get(query.ParamEndDate))
	if err != nil {
		return nil, fmt.Errorf("rejected %s: %w", query.ParamEndDate, err)
	}

	stmt := database.Rebind(s.driver, fmt.Sprintf(`SELECT id, time_last_update_utc, exchange_rate
		FROM %s
		WHERE currency = ? AND updated_at_millis BETWEEN ? AND ?
		ORDER BY id`, s.table))

	rows, err := s.db.QueryContext(ctx, stmt, req.Get(query.ParamCurrency), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("rates source query failed: %w", err)
	}
	return &sqlCursor{rows: rows}, nil
}

// Close releases the database handle.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *SQLSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// sqlCursor exposes *sql.Rows as a Cursor. Columns are scanned as raw driver
// values so a malformed value fails in the parser for that row only; NULL
// columns are left out of the row and read as missing fields.
type sqlCursor struct {
	rows *sql.Rows
	cur  Row
	err  error
}

func (c *sqlCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	var id, ts, rate any
	if err := c.rows.Scan(&id, &ts, &rate); err != nil {
		c.err = fmt.Errorf("scan rates row: %w", err)
		return false
	}
	row := make(Row, 3)
	if id != nil {
		row[FieldID] = id
	}
	if ts != nil {
		row[FieldTimeLastUpdateUTC] = ts
	}
	if rate != nil {
		row[FieldExchangeRate] = rate
	}
	c.cur = row
	return true
}

func (c *sqlCursor) Row() Row { return c.cur }

func (c *sqlCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *sqlCursor) Close() error { return c.rows.Close() }
