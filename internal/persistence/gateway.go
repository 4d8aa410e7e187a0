// Package persistence stores the last fetched series and the user's selection in durable key-value storage.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ratefeed/internal/currency"
	"ratefeed/internal/kvstore"
	"ratefeed/internal/model"
)

// Logical keys, stored with the configured prefix.
const (
	KeyEntries   = "entries"
	KeyCurrency  = "selected_currency"
	KeyStartDate = "start_date_millis"
	KeyEndDate   = "end_date_millis"
)

// DefaultKeyPrefix namespaces every key.
const DefaultKeyPrefix = "exchange_data:"

// DefaultLookback is the date range offered when nothing has been persisted.
const DefaultLookback = 7 * 24 * time.Hour

// Options tunes a Gateway. Zero values select the defaults.
type Options struct {
	KeyPrefix       string
	DefaultCurrency currency.Code
	Lookback        time.Duration
	Now             func() time.Time
}

// Gateway serializes the series and the selection to a kvstore.Store.
type Gateway struct {
	kv              kvstore.Store
	log             *zap.SugaredLogger
	prefix          string
	defaultCurrency currency.Code
	lookback        time.Duration
	now             func() time.Time
}

// NewGateway creates a Gateway over kv.
func NewGateway(kv kvstore.Store, logger *zap.SugaredLogger, opts Options) *Gateway {
	g := &Gateway{
		kv:              kv,
		log:             logger,
		prefix:          opts.KeyPrefix,
		defaultCurrency: opts.DefaultCurrency,
		lookback:        opts.Lookback,
		now:             opts.Now,
	}
	if g.prefix == "" {
		g.prefix = DefaultKeyPrefix
	}
	if g.defaultCurrency == "" {
		g.defaultCurrency = currency.Default
	}
	if g.lookback <= 0 {
		g.lookback = DefaultLookback
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func (g *Gateway) key(name string) string { return g.prefix + name }

// Save writes the full series as JSON.
func (g *Gateway) Save(ctx context.Context, entries []model.Entry) error {
	if entries == nil {
		entries = []model.Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}
	if err := g.kv.Set(ctx, g.key(KeyEntries), string(data)); err != nil {
		return fmt.Errorf("save entries: %w", err)
	}
	g.log.Debugw("Cached series", "entries", len(entries))
	return nil
}

// Load reads the cached series. Absent or unreadable data yields an empty series.
func (g *Gateway) Load(ctx context.Context) []model.Entry {
	raw, ok, err := g.kv.Get(ctx, g.key(KeyEntries))
	if err != nil {
		g.log.Warnw("Failed to read cached series", "error", err)
		return []model.Entry{}
	}
	if !ok {
		return []model.Entry{}
	}

	var entries []model.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		g.log.Warnw("Discarding malformed cached series", "error", err)
		return []model.Entry{}
	}
	if entries == nil {
		return []model.Entry{}
	}
	return entries
}

// SaveCurrency persists the selected currency.
func (g *Gateway) SaveCurrency(ctx context.Context, code currency.Code) error {
	if err := g.kv.Set(ctx, g.key(KeyCurrency), string(code)); err != nil {
		return fmt.Errorf("save currency: %w", err)
	}
	return nil
}

// SaveDates persists the selected range as local wall-clock millis.
func (g *Gateway) SaveDates(ctx context.Context, startLocalMillis, endLocalMillis int64) error {
	var errs []error
	if err := g.kv.Set(ctx, g.key(KeyStartDate), strconv.FormatInt(startLocalMillis, 10)); err != nil {
		errs = append(errs, fmt.Errorf("save start date: %w", err))
	}
	if err := g.kv.Set(ctx, g.key(KeyEndDate), strconv.FormatInt(endLocalMillis, 10)); err != nil {
		errs = append(errs, fmt.Errorf("save end date: %w", err))
	}
	return errors.Join(errs...)
}

// SaveSelection persists currency and range together.
func (g *Gateway) SaveSelection(ctx context.Context, sel model.Selection) error {
	return errors.Join(
		g.SaveCurrency(ctx, sel.Currency),
		g.SaveDates(ctx, sel.StartMillis, sel.EndMillis),
	)
}

// LoadSelection returns the persisted selection, filling absent or unreadable
// values with the default currency and a lookback window ending now.
func (g *Gateway) LoadSelection(ctx context.Context) model.Selection {
	now := g.now()
	sel := model.Selection{
		Currency:    g.defaultCurrency,
		StartMillis: now.Add(-g.lookback).UnixMilli(),
		EndMillis:   now.UnixMilli(),
	}

	if raw, ok := g.get(ctx, KeyCurrency); ok {
		if code, err := currency.Parse(raw); err == nil {
			sel.Currency = code
		} else {
			g.log.Warnw("Ignoring persisted currency", "value", raw, "error", err)
		}
	}
	if v, ok := g.getInt(ctx, KeyStartDate); ok {
		sel.StartMillis = v
	}
	if v, ok := g.getInt(ctx, KeyEndDate); ok {
		sel.EndMillis = v
	}
	return sel
}

func (g *Gateway) get(ctx context.Context, name string) (string, bool) {
	raw, ok, err := g.kv.Get(ctx, g.key(name))
	if err != nil {
		g.log.Warnw("Failed to read persisted value", "key", name, "error", err)
		return "", false
	}
	return raw, ok
}

func (g *Gateway) getInt(ctx context.Context, name string) (int64, bool) {
	raw, ok := g.get(ctx, name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		g.log.Warnw("Ignoring malformed persisted value", "key", name, "value", raw, "error", err)
		return 0, false
	}
	return v, true
}
