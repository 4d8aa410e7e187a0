package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ratefeed/internal/currency"
	"ratefeed/internal/model"
	"ratefeed/internal/query"
	"ratefeed/internal/series"
	"ratefeed/internal/source"
	"ratefeed/internal/timezone"
)

var (
	jan1     = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan1Sel  = model.Selection{Currency: "EUR", StartMillis: jan1.UnixMilli(), EndMillis: jan1.Add(24 * time.Hour).UnixMilli()}
	waitTime = 2 * time.Second
)

func row(id int64, ts string, rate any) source.Row {
	return source.Row{
		source.FieldID:                id,
		source.FieldTimeLastUpdateUTC: ts,
		source.FieldExchangeRate:      rate,
	}
}

func cursor(rows ...source.Row) source.Cursor {
	return source.NewSliceCursor(rows)
}

type fixture struct {
	src       *MockSource
	persister *MockPersister
	store     *series.Store
	orch      *Orchestrator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		src:       new(MockSource),
		persister: new(MockPersister),
		store:     series.NewStore(nil),
	}
	f.orch = New(f.src, query.NewBuilder(""), f.store, f.persister, timezone.FixedOffset(0), zap.NewNop().Sugar(), opts)
	t.Cleanup(func() {
		f.orch.Close()
		f.store.Close()
	})
	return f
}

func wait(t *testing.T, task *Task) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTime)
	defer cancel()
	return task.Wait(ctx)
}

func TestLoad_ScenarioA(t *testing.T) {
	f := newFixture(t, Options{DiscardStale: true})
	f.src.On("Query", mock.Anything, forCurrency("EUR")).Return(cursor(
		row(1, "Mon, 01 Jan 2024 00:00:00 +0000", 17.05),
		row(2, "Mon, 01 Jan 2024 01:00:00 +0000", 17.10),
	), nil).Once()
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil).Once()

	outcome, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.NoError(t, err)
	assert.Equal(t, ResultSucceeded, outcome.Result)
	assert.Equal(t, 2, outcome.Rows)
	assert.Equal(t, 2, outcome.Entries)
	assert.False(t, outcome.FinishedAt.IsZero())
	last := f.orch.Status().Last
	require.NotNil(t, last)
	assert.Equal(t, outcome.FinishedAt, last.FinishedAt)

	want := []model.Entry{
		{TimestampLocalMillis: float64(jan1.UnixMilli()), Rate: 17.05},
		{TimestampLocalMillis: float64(jan1.Add(time.Hour).UnixMilli()), Rate: 17.10},
	}
	assert.Equal(t, want, f.store.Current())
	f.persister.AssertCalled(t, "Save", mock.Anything, want)
	f.src.AssertExpectations(t)
}

func TestLoad_QueryCarriesFormattedBounds(t *testing.T) {
	f := newFixture(t, Options{})
	var got query.Request
	f.src.On("Query", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(query.Request) }).
		Return(cursor(), nil).Once()
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil)

	_, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.NoError(t, err)

	assert.Equal(t, query.DefaultResource, got.Resource)
	assert.Equal(t, "EUR", got.Get(query.ParamCurrency))
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 +0000", got.Get(query.ParamStartDate))
	assert.Equal(t, "Tue, 02 Jan 2024 00:00:00 +0000", got.Get(query.ParamEndDate))
}

func TestLoad_ScenarioB_SkipsMalformedRow(t *testing.T) {
	f := newFixture(t, Options{})
	f.src.On("Query", mock.Anything, mock.Anything).Return(cursor(
		row(1, "Mon, 01 Jan 2024 02:00:00 +0000", 1.2),
		row(2, "not a date", 9.9),
		row(3, "Mon, 01 Jan 2024 01:00:00 +0000", 1.1),
	), nil)
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil)

	outcome, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Rows)
	assert.Equal(t, 1, outcome.Skipped)
	assert.Equal(t, []model.Entry{
		{TimestampLocalMillis: float64(jan1.Add(time.Hour).UnixMilli()), Rate: 1.1},
		{TimestampLocalMillis: float64(jan1.Add(2 * time.Hour).UnixMilli()), Rate: 1.2},
	}, f.store.Current())
}

func TestLoad_SortIsStableForEqualTimestamps(t *testing.T) {
	f := newFixture(t, Options{})
	f.src.On("Query", mock.Anything, mock.Anything).Return(cursor(
		row(1, "Mon, 01 Jan 2024 05:00:00 +0000", 3.0),
		row(2, "Mon, 01 Jan 2024 01:00:00 +0000", 1.0),
		row(3, "Mon, 01 Jan 2024 05:00:00 +0000", 4.0),
		row(4, "Mon, 01 Jan 2024 01:00:00 +0000", 2.0),
	), nil)
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil)

	_, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.NoError(t, err)

	rates := make([]float64, 0, 4)
	for _, e := range f.store.Current() {
		rates = append(rates, e.Rate)
	}
	assert.Equal(t, []float64{1.0, 2.0, 3.0, 4.0}, rates)
}

func TestLoad_EmptyResultIsSuccess(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.store.Replace(context.Background(), []model.Entry{{TimestampLocalMillis: 1, Rate: 1}}))
	f.src.On("Query", mock.Anything, mock.Anything).Return(cursor(), nil)
	f.persister.On("Save", mock.Anything, mock.MatchedBy(func(e []model.Entry) bool { return len(e) == 0 })).Return(nil).Once()

	outcome, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.NoError(t, err)
	assert.Equal(t, ResultSucceeded, outcome.Result)
	assert.Empty(t, f.store.Current())
	f.persister.AssertExpectations(t)
}

func TestLoad_SourceFailureLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t, Options{})
	prev := []model.Entry{{TimestampLocalMillis: 1, Rate: 1}}
	require.NoError(t, f.store.Replace(context.Background(), prev))
	f.src.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	outcome, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, ResultFailed, outcome.Result)
	assert.Equal(t, prev, f.store.Current())
	f.persister.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)

	st := f.orch.Status()
	assert.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, ResultFailed, st.Last.Result)
	assert.False(t, outcome.FinishedAt.IsZero())
	assert.False(t, st.Last.FinishedAt.IsZero())
}

func TestLoad_PersistFailureStillUpdatesStore(t *testing.T) {
	f := newFixture(t, Options{})
	f.src.On("Query", mock.Anything, mock.Anything).Return(cursor(
		row(1, "Mon, 01 Jan 2024 00:00:00 +0000", 17.05),
	), nil)
	f.persister.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	outcome, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.NoError(t, err)
	assert.Equal(t, ResultSucceeded, outcome.Result)
	assert.Len(t, f.store.Current(), 1)
}

func TestLoad_RejectsInvalidSelection(t *testing.T) {
	f := newFixture(t, Options{})

	tests := []struct {
		name string
		sel  model.Selection
		want error
	}{
		{"unsupported currency", model.Selection{Currency: "MXN", StartMillis: 0, EndMillis: 1}, currency.ErrUnsupportedCurrency},
		{"bad code format", model.Selection{Currency: "eu", StartMillis: 0, EndMillis: 1}, currency.ErrInvalidCodeFormat},
		{"inverted range", model.Selection{Currency: "EUR", StartMillis: 2, EndMillis: 1}, model.ErrInvertedRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := f.orch.Load(context.Background(), tc.sel)
			select {
			case <-task.Done():
			default:
				t.Fatal("rejected task should already be done")
			}
			outcome, err := wait(t, task)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, ResultRejected, outcome.Result)
		})
	}
	f.src.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestStatus_ReportsRejectedSelection(t *testing.T) {
	f := newFixture(t, Options{DiscardStale: true})
	f.src.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.ErrorIs(t, err, ErrSourceUnavailable)

	inverted := model.Selection{Currency: "EUR", StartMillis: 2, EndMillis: 1}
	outcome, err := wait(t, f.orch.Load(context.Background(), inverted))
	require.ErrorIs(t, err, model.ErrInvertedRange)

	st := f.orch.Status()
	assert.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, ResultRejected, st.Last.Result)
	assert.Equal(t, outcome.RequestID, st.Last.RequestID)
	assert.Equal(t, inverted, st.Last.Selection)
	assert.ErrorIs(t, st.Last.Err, model.ErrInvertedRange)
}

// gatedLoad starts a fetch for code whose rows are released when the returned
// channel is closed.
func gatedLoad(t *testing.T, f *fixture, code currency.Code, rate float64) (*Task, chan struct{}) {
	t.Helper()
	release := make(chan struct{})
	f.src.On("Query", mock.Anything, forCurrency(string(code))).
		Run(func(mock.Arguments) { <-release }).
		Return(cursor(row(1, "Mon, 01 Jan 2024 00:00:00 +0000", rate)), nil).Once()

	sel := jan1Sel
	sel.Currency = code
	return f.orch.Load(context.Background(), sel), release
}

func TestLoad_DiscardsStaleCompletion(t *testing.T) {
	f := newFixture(t, Options{DiscardStale: true})
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil)

	older, releaseOlder := gatedLoad(t, f, "EUR", 1.0)
	newer, releaseNewer := gatedLoad(t, f, "GBP", 2.0)
	assert.Less(t, older.ID, newer.ID)
	assert.Equal(t, StateFetching, f.orch.Status().State)

	close(releaseNewer)
	_, err := wait(t, newer)
	require.NoError(t, err)

	close(releaseOlder)
	outcome, err := wait(t, older)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, ResultDiscarded, outcome.Result)

	require.Len(t, f.store.Current(), 1)
	assert.Equal(t, 2.0, f.store.Current()[0].Rate)
	f.persister.AssertNumberOfCalls(t, "Save", 1)

	st := f.orch.Status()
	assert.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, newer.ID, st.Last.RequestID)
}

func TestLoad_LastCompletionWinsWhenStaleKept(t *testing.T) {
	f := newFixture(t, Options{DiscardStale: false})
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil)

	older, releaseOlder := gatedLoad(t, f, "EUR", 1.0)
	newer, releaseNewer := gatedLoad(t, f, "GBP", 2.0)

	close(releaseNewer)
	_, err := wait(t, newer)
	require.NoError(t, err)
	close(releaseOlder)
	_, err = wait(t, older)
	require.NoError(t, err)

	require.Len(t, f.store.Current(), 1)
	assert.Equal(t, 1.0, f.store.Current()[0].Rate)
	f.persister.AssertNumberOfCalls(t, "Save", 2)
	assert.Equal(t, older.ID, f.orch.Status().Last.RequestID)
}

func TestLoad_NotifiesObserversOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.src.On("Query", mock.Anything, mock.Anything).Return(cursor(
		row(1, "Mon, 01 Jan 2024 00:00:00 +0000", 17.05),
	), nil)
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil)

	got := make(chan []model.Entry, 4)
	cancel := f.store.Subscribe(func(entries []model.Entry) { got <- entries })
	defer cancel()
	assert.Empty(t, <-got)

	_, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	require.NoError(t, err)

	select {
	case entries := <-got:
		assert.Len(t, entries, 1)
	case <-time.After(waitTime):
		t.Fatal("observer was not notified")
	}
	assert.Empty(t, got)
}

func TestClose_IgnoresLateCompletion(t *testing.T) {
	f := newFixture(t, Options{DiscardStale: true})
	// The source notices cancellation but still hands back rows.
	f.src.On("Query", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(cursor(row(1, "Mon, 01 Jan 2024 00:00:00 +0000", 1.0)), nil).Once()

	task := f.orch.Load(context.Background(), jan1Sel)
	f.orch.Close()

	outcome, err := wait(t, task)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, ResultDiscarded, outcome.Result)
	assert.Empty(t, f.store.Current())
	f.persister.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)

	_, err = wait(t, f.orch.Load(context.Background(), jan1Sel))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoad_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	f := newFixture(t, Options{})
	f.persister.On("Save", mock.Anything, mock.Anything).Return(nil)

	callerDone := make(chan struct{})
	var fetchErr error
	f.src.On("Query", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-callerDone
			fetchErr = args.Get(0).(context.Context).Err()
		}).
		Return(cursor(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	task := f.orch.Load(ctx, jan1Sel)
	cancel()
	close(callerDone)

	_, err := wait(t, task)
	require.NoError(t, err)
	assert.NoError(t, fetchErr)
}

func TestLoad_TimeoutBoundsFetch(t *testing.T) {
	f := newFixture(t, Options{Timeout: 10 * time.Millisecond})
	f.src.On("Query", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)

	outcome, err := wait(t, f.orch.Load(context.Background(), jan1Sel))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ResultFailed, outcome.Result)
}

func TestLoadPersisted_ConvertsLocalBoundsToUTC(t *testing.T) {
	src := new(MockSource)
	persister := new(MockPersister)
	store := series.NewStore(nil)
	defer store.Close()
	orch := New(src, query.NewBuilder(""), store, persister, timezone.FixedOffset(2*time.Hour), zap.NewNop().Sugar(), Options{})
	defer orch.Close()

	local := jan1.Add(2 * time.Hour).UnixMilli()
	persister.On("LoadSelection", mock.Anything).Return(model.Selection{Currency: "GBP", StartMillis: local, EndMillis: local})
	persister.On("Save", mock.Anything, mock.Anything).Return(nil)
	src.On("Query", mock.Anything, mock.MatchedBy(func(req query.Request) bool {
		return req.Get(query.ParamCurrency) == "GBP" &&
			req.Get(query.ParamStartDate) == "Mon, 01 Jan 2024 00:00:00 +0000" &&
			req.Get(query.ParamEndDate) == "Mon, 01 Jan 2024 00:00:00 +0000"
	})).Return(cursor(), nil).Once()

	outcome, err := wait(t, orch.LoadPersisted(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, jan1.UnixMilli(), outcome.Selection.StartMillis)
	src.AssertExpectations(t)
}

func TestWait_ContextEnds(t *testing.T) {
	task := newTask(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
