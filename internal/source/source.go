// Package source implements the external tabular data sources that return exchange rate rows.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ratefeed/internal/query"
)

// Field names every row is expected to expose.
const (
	FieldID                = "id"
	FieldTimeLastUpdateUTC = "timeLastUpdateUtc"
	FieldExchangeRate      = "exchangeRate"
)

// ErrMissingField is returned when a row does not carry the requested field.
var ErrMissingField = errors.New("missing field")

// ErrFieldType is returned when a field holds a value of the wrong kind.
var ErrFieldType = errors.New("unexpected field type")

// Source runs one query against the external data source.
// An empty result is a valid, non-error response.
type Source interface {
	Query(ctx context.Context, req query.Request) (Cursor, error)
}

// Cursor iterates over returned rows in arrival order.
type Cursor interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Row is one opaque record with named fields.
type Row map[string]any

// String returns a text field.
func (r Row) String(name string) (string, error) {
	v, ok := r[name]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("%w: %s is %T", ErrFieldType, name, v)
	}
}

// Int returns an integer field.
func (r Row) Int(name string) (int64, error) {
	v, ok := r[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: %s is not integral", ErrFieldType, name)
		}
		return int64(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrFieldType, name, err)
		}
		return n, nil
	case string:
		return parseInt(name, x)
	case []byte:
		return parseInt(name, string(x))
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrFieldType, name, v)
	}
}

func parseInt(name, s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrFieldType, name, err)
	}
	return n, nil
}

// Float returns a numeric field. Numbers sent as text are accepted.
func (r Row) Float(name string) (float64, error) {
	v, ok := r[name]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case json.Number:
		return parseDecimal(name, string(x))
	case string:
		return parseDecimal(name, x)
	case []byte:
		return parseDecimal(name, string(x))
	default:
		return 0, fmt.Errorf("%w: %s is %T", ErrFieldType, name, v)
	}
}

func parseDecimal(name, s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrFieldType, name, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// SliceCursor serves rows from memory.
type SliceCursor struct {
	rows []Row
	pos  int
}

// NewSliceCursor creates a cursor over rows.
func NewSliceCursor(rows []Row) *SliceCursor {
	return &SliceCursor{rows: rows, pos: -1}
}

// Next advances to the next row.
func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

// Row returns the current row.
func (c *SliceCursor) Row() Row {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

// Err always returns nil.
func (c *SliceCursor) Err() error { return nil }

// Close is a no-op.
func (c *SliceCursor) Close() error { return nil }

var _ Cursor = (*SliceCursor)(nil)
