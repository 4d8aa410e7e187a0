package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ratefeed/internal/fetch"
	"ratefeed/internal/model"
	"ratefeed/internal/query"
	"ratefeed/internal/series"
	"ratefeed/internal/source"
	"ratefeed/internal/timezone"
)

type stubSource struct {
	rows []source.Row
	err  error
}

func (s *stubSource) Query(_ context.Context, _ query.Request) (source.Cursor, error) {
	if s.err != nil {
		return nil, s.err
	}
	return source.NewSliceCursor(s.rows), nil
}

type nopPersister struct{}

func (nopPersister) Save(context.Context, []model.Entry) error { return nil }

func (nopPersister) LoadSelection(context.Context) model.Selection { return model.Selection{} }

func newOrchestrator(t *testing.T, src source.Source) (*fetch.Orchestrator, *series.Store) {
	t.Helper()
	store := series.NewStore(nil)
	orch := fetch.New(src, query.NewBuilder(""), store, nopPersister{}, timezone.FixedOffset(0), zap.NewNop().Sugar(), fetch.Options{DiscardStale: true})
	t.Cleanup(func() {
		orch.Close()
		store.Close()
	})
	return orch, store
}

func newPayloadTask(t *testing.T, p LoadPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeLoadRates, data)
}

var eurPayload = LoadPayload{RequestID: "r-1", Currency: "EUR", StartUTCMillis: 1704067200000, EndUTCMillis: 1704153600000}

func TestLoadHandler_Success(t *testing.T) {
	orch, store := newOrchestrator(t, &stubSource{rows: []source.Row{{
		source.FieldID:                int64(1),
		source.FieldTimeLastUpdateUTC: "Mon, 01 Jan 2024 00:00:00 +0000",
		source.FieldExchangeRate:      17.05,
	}}})
	handler := NewLoadHandler(orch, zap.NewNop().Sugar())

	err := handler(context.Background(), newPayloadTask(t, eurPayload))
	require.NoError(t, err)
	assert.Equal(t, []model.Entry{{TimestampLocalMillis: 1704067200000, Rate: 17.05}}, store.Current())
}

func TestLoadHandler_SourceFailure(t *testing.T) {
	orch, _ := newOrchestrator(t, &stubSource{err: errors.New("connection refused")})
	handler := NewLoadHandler(orch, zap.NewNop().Sugar())

	err := handler(context.Background(), newPayloadTask(t, eurPayload))
	assert.ErrorIs(t, err, fetch.ErrSourceUnavailable)
}

func TestLoadHandler_RejectedSkipsRetry(t *testing.T) {
	orch, _ := newOrchestrator(t, &stubSource{})
	handler := NewLoadHandler(orch, zap.NewNop().Sugar())

	p := eurPayload
	p.StartUTCMillis, p.EndUTCMillis = p.EndUTCMillis, p.StartUTCMillis
	err := handler(context.Background(), newPayloadTask(t, p))
	assert.ErrorIs(t, err, model.ErrInvertedRange)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLoadHandler_InvalidPayload(t *testing.T) {
	orch, _ := newOrchestrator(t, &stubSource{})
	handler := NewLoadHandler(orch, zap.NewNop().Sugar())

	err := handler(context.Background(), asynq.NewTask(TaskTypeLoadRates, []byte("{not json")))
	assert.NoError(t, err)
}

func TestNewTask(t *testing.T) {
	sel := eurPayload.Selection()
	task, err := NewTask("r-1", sel, 0)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeLoadRates, task.Type())

	var got LoadPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, eurPayload, got)
	assert.Equal(t, sel, got.Selection())
}

func TestInlineDispatcher(t *testing.T) {
	orch, _ := newOrchestrator(t, &stubSource{})
	d := NewInlineDispatcher(orch)

	id, err := d.Dispatch(context.Background(), eurPayload.Selection())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = d.Dispatch(context.Background(), model.Selection{Currency: "MXN", StartMillis: 0, EndMillis: 1})
	assert.Error(t, err)
}
