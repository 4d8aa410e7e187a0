// Package fetch runs the fetch-normalize-cache pipeline: query the source, parse and sort
// the rows, hand the series to the store and persist it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"ratefeed/internal/currency"
	"ratefeed/internal/model"
	"ratefeed/internal/parser"
	"ratefeed/internal/query"
	"ratefeed/internal/series"
	"ratefeed/internal/source"
	"ratefeed/internal/timezone"
)

// ErrSourceUnavailable marks a failure to reach or query the external source.
var ErrSourceUnavailable = errors.New("rates source unavailable")

// ErrSuperseded is returned by a fetch whose result was discarded because a newer
// request had already been applied.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// ErrClosed is returned for fetches started or completed after Close.
var ErrClosed = errors.New("orchestrator closed")

// Persister is the part of the persistence gateway the orchestrator needs.
type Persister interface {
	Save(ctx context.Context, entries []model.Entry) error
	LoadSelection(ctx context.Context) model.Selection
}

// Options tunes an Orchestrator.
type Options struct {
	// DiscardStale drops a completion when a newer request has already been applied.
	// When false the last completion wins, whatever order the requests were made in.
	DiscardStale bool
	// Timeout bounds one fetch; zero means no bound.
	Timeout time.Duration
}

// Orchestrator owns the Idle -> Fetching -> {Succeeded, Failed} -> Idle cycle.
type Orchestrator struct {
	source    source.Source
	builder   query.Builder
	store     *series.Store
	persister Persister
	offsetAt  timezone.OffsetFunc
	validator currency.Validator
	log       *zap.SugaredLogger
	opts      Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	seq     atomic.Uint64

	// applyMu serializes the store hand-off and persistence of completions.
	applyMu sync.Mutex
	applied uint64

	mu       sync.Mutex
	closed   bool
	inFlight int
	last     *Outcome
}

// New creates an Orchestrator.
func New(
	src source.Source,
	builder query.Builder,
	store *series.Store,
	persister Persister,
	offsetAt timezone.OffsetFunc,
	logger *zap.SugaredLogger,
	opts Options,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		source:    src,
		builder:   builder,
		store:     store,
		persister: persister,
		offsetAt:  offsetAt,
		validator: currency.NewValidator(),
		log:       logger,
		opts:      opts,
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// Load starts a fetch for sel, whose bounds must already be UTC millis, on a
// background goroutine. The returned Task completes when the result has been
// handed to the store and persisted, or when the fetch failed.
func (o *Orchestrator) Load(ctx context.Context, sel model.Selection) *Task {
	id := o.seq.Add(1)

	if err := o.validate(sel); err != nil {
		outcome := Outcome{RequestID: id, Selection: sel, Result: ResultRejected, Err: err, FinishedAt: time.Now()}
		o.mu.Lock()
		o.record(outcome)
		o.mu.Unlock()
		return completedTask(id, outcome)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return completedTask(id, Outcome{RequestID: id, Result: ResultDiscarded, Err: ErrClosed, FinishedAt: time.Now()})
	}
	o.inFlight++
	o.wg.Add(1)
	o.mu.Unlock()

	task := newTask(id)
	logger := o.log.With("request_id", id, "currency", sel.Currency)
	logger.Infow("Fetch started", "start_utc", sel.StartMillis, "end_utc", sel.EndMillis)

	go func() {
		defer o.wg.Done()
		fctx, cancel := o.fetchContext(ctx)
		outcome := o.fetch(fctx, id, sel, logger)
		cancel()
		outcome.FinishedAt = time.Now()

		o.mu.Lock()
		o.inFlight--
		o.record(outcome)
		o.mu.Unlock()

		task.complete(outcome)
	}()
	return task
}

// record keeps outcome as the latest one. With DiscardStale an older request
// never replaces a newer one. Callers hold o.mu.
func (o *Orchestrator) record(outcome Outcome) {
	if o.last == nil || !o.opts.DiscardStale || outcome.RequestID >= o.last.RequestID {
		o.last = &outcome
	}
}

// LoadPersisted fetches the persisted selection, converting its local bounds to UTC.
func (o *Orchestrator) LoadPersisted(ctx context.Context) *Task {
	sel := o.persister.LoadSelection(ctx)
	sel.StartMillis = timezone.ToUTCMillis(sel.StartMillis, o.offsetAt)
	sel.EndMillis = timezone.ToUTCMillis(sel.EndMillis, o.offsetAt)
	return o.Load(ctx, sel)
}

func (o *Orchestrator) validate(sel model.Selection) error {
	if err := o.validator.Validate(sel.Currency); err != nil {
		return fmt.Errorf("%w: %q", err, sel.Currency)
	}
	return sel.Validate()
}

// fetchContext keeps the caller's values but not its cancellation: the fetch
// outlives the request that triggered it and is bounded by Close and Timeout.
func (o *Orchestrator) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(o.baseCtx, cancel)
	if o.opts.Timeout <= 0 {
		return fctx, func() { stop(); cancel() }
	}
	tctx, tcancel := context.WithTimeout(fctx, o.opts.Timeout)
	return tctx, func() { tcancel(); stop(); cancel() }
}

func (o *Orchestrator) fetch(ctx context.Context, id uint64, sel model.Selection, logger *zap.SugaredLogger) Outcome {
	outcome := Outcome{RequestID: id, Selection: sel}

	req := o.builder.Build(sel.Currency, sel.StartMillis, sel.EndMillis)
	cur, err := o.source.Query(ctx, req)
	if err != nil {
		return o.failed(outcome, err, logger)
	}
	res, err := parser.ParseAll(cur, o.offsetAt, logger)
	if closeErr := cur.Close(); closeErr != nil {
		logger.Warnw("Failed to close row cursor", "error", closeErr)
	}
	if err != nil {
		return o.failed(outcome, err, logger)
	}

	entries := res.Entries
	sortEntries(entries)
	outcome.Rows = res.Rows
	outcome.Skipped = len(res.Skipped)
	outcome.Entries = len(entries)

	return o.apply(ctx, outcome, entries, logger)
}

func (o *Orchestrator) failed(outcome Outcome, err error, logger *zap.SugaredLogger) Outcome {
	outcome.Result = ResultFailed
	outcome.Err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	logger.Errorw("Fetch failed", "error", err)
	return outcome
}

func (o *Orchestrator) apply(ctx context.Context, outcome Outcome, entries []model.Entry, logger *zap.SugaredLogger) Outcome {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	if o.isClosed() {
		outcome.Result, outcome.Err = ResultDiscarded, ErrClosed
		logger.Infow("Fetch completed after close, result ignored")
		return outcome
	}
	if o.opts.DiscardStale && outcome.RequestID < o.applied {
		outcome.Result, outcome.Err = ResultDiscarded, ErrSuperseded
		logger.Infow("Discarding stale fetch result", "applied_request_id", o.applied)
		return outcome
	}

	if err := o.store.Replace(o.baseCtx, entries); err != nil {
		outcome.Result, outcome.Err = ResultDiscarded, fmt.Errorf("%w: %w", ErrClosed, err)
		logger.Infow("Store closed, result ignored", "error", err)
		return outcome
	}
	if outcome.RequestID > o.applied {
		o.applied = outcome.RequestID
	}

	if err := o.persister.Save(ctx, entries); err != nil {
		logger.Warnw("Failed to persist series", "error", err)
	}

	outcome.Result = ResultSucceeded
	logger.Infow("Fetch succeeded", "rows", outcome.Rows, "entries", outcome.Entries, "skipped", outcome.Skipped)
	return outcome
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Status reports whether fetches are in flight and the outcome of the latest one.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{State: StateIdle, InFlight: o.inFlight}
	if o.inFlight > 0 {
		st.State = StateFetching
	}
	if o.last != nil {
		last := *o.last
		st.Last = &last
	}
	return st
}

// Close tears the orchestrator down: no new fetches start, in-flight fetches are
// cancelled and waited for, and none of them touches the store afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// sortEntries orders by local timestamp, keeping arrival order for equal timestamps.
func sortEntries(entries []model.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimestampLocalMillis < entries[j].TimestampLocalMillis
	})
}
