// Package model defines the canonical exchange rate series types shared by the pipeline.
package model

import (
	"errors"
	"fmt"

	"ratefeed/internal/currency"
)

// Entry is one point of the series: local wall-clock time and the rate observed at it.
// TimestampLocalMillis is a float so it can be used directly as a plotting coordinate.
type Entry struct {
	TimestampLocalMillis float64 `json:"timestamp"`
	Rate                 float64 `json:"rate"`
}

// Selection is the caller-chosen currency and date range for a fetch.
// Whether the millis are local or UTC depends on where the value travels:
// persisted selections are local, selections handed to a fetch are UTC.
type Selection struct {
	Currency    currency.Code `json:"currency"`
	StartMillis int64         `json:"start_millis"`
	EndMillis   int64         `json:"end_millis"`
}

// ErrInvertedRange indicates a selection whose start is after its end.
var ErrInvertedRange = errors.New("start date is after end date")

// Validate checks the range ordering. The core never swaps an inverted range itself.
func (s Selection) Validate() error {
	if s.StartMillis > s.EndMillis {
		return fmt.Errorf("%w: start=%d end=%d", ErrInvertedRange, s.StartMillis, s.EndMillis)
	}
	return nil
}
