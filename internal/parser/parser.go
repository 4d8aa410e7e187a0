// Package parser turns raw source rows into canonical series entries.
package parser

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ratefeed/internal/model"
	"ratefeed/internal/query"
	"ratefeed/internal/source"
	"ratefeed/internal/timezone"
)

// ErrMalformedRow marks a row that was skipped.
var ErrMalformedRow = errors.New("malformed row")

// RowError describes why one row was skipped.
type RowError struct {
	Index int   // position in arrival order
	ID    int64 // row id, when it could be read
	HasID bool
	Err   error
}

func (e *RowError) Error() string {
	if e.HasID {
		return fmt.Sprintf("row %d (id=%d): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

// Unwrap lets callers match both ErrMalformedRow and the underlying cause.
func (e *RowError) Unwrap() []error { return []error{ErrMalformedRow, e.Err} }

// Parse converts one row. The timestamp is read as UTC and shifted to local
// wall-clock millis with offsetAt evaluated at that instant.
func Parse(row source.Row, offsetAt timezone.OffsetFunc) (model.Entry, error) {
	raw, err := row.String(source.FieldTimeLastUpdateUTC)
	if err != nil {
		return model.Entry{}, err
	}
	utc, err := query.ParseUTC(raw)
	if err != nil {
		return model.Entry{}, fmt.Errorf("parse %s %q: %w", source.FieldTimeLastUpdateUTC, raw, err)
	}
	rate, err := row.Float(source.FieldExchangeRate)
	if err != nil {
		return model.Entry{}, err
	}

	local := timezone.ToLocalMillis(utc.UnixMilli(), offsetAt)
	return model.Entry{TimestampLocalMillis: float64(local), Rate: rate}, nil
}

// Result is the outcome of parsing one batch.
type Result struct {
	Entries []model.Entry // successful parses, arrival order
	Rows    int
	Skipped []*RowError
}

// ParseAll parses every row of cur in arrival order. Malformed rows are logged and
// skipped; the only error returned is a cursor failure.
func ParseAll(cur source.Cursor, offsetAt timezone.OffsetFunc, log *zap.SugaredLogger) (Result, error) {
	var res Result
	for cur.Next() {
		row := cur.Row()
		idx := res.Rows
		res.Rows++

		entry, err := Parse(row, offsetAt)
		if err != nil {
			rowErr := &RowError{Index: idx, Err: err}
			if id, idErr := row.Int(source.FieldID); idErr == nil {
				rowErr.ID, rowErr.HasID = id, true
			}
			res.Skipped = append(res.Skipped, rowErr)
			log.Warnw("Skipping malformed row", "index", idx, "id", rowErr.ID, "error", err)
			continue
		}

		log.Debugw("Parsed row", "index", idx, "local_millis", int64(entry.TimestampLocalMillis), "rate", entry.Rate)
		res.Entries = append(res.Entries, entry)
	}
	if err := cur.Err(); err != nil {
		return res, fmt.Errorf("read rows: %w", err)
	}
	return res, nil
}
