// Package worker runs fetch requests in the background, either in-process or through an Asynq queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ratefeed/internal/currency"
	"ratefeed/internal/fetch"
	"ratefeed/internal/model"
)

// TaskTypeLoadRates is the Asynq task type for a rates fetch.
const TaskTypeLoadRates = "rates:load"

// LoadPayload is the Asynq payload of a rates fetch. Bounds are UTC millis.
type LoadPayload struct {
	RequestID      string        `json:"request_id"`
	Currency       currency.Code `json:"currency"`
	StartUTCMillis int64         `json:"start_utc_millis"`
	EndUTCMillis   int64         `json:"end_utc_millis"`
}

// Selection returns the fetch selection carried by the payload.
func (p LoadPayload) Selection() model.Selection {
	return model.Selection{Currency: p.Currency, StartMillis: p.StartUTCMillis, EndMillis: p.EndUTCMillis}
}

// Loader starts fetches.
type Loader interface {
	Load(ctx context.Context, sel model.Selection) *fetch.Task
}

// Dispatcher hands a fetch request to whatever runs it and returns an id for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, sel model.Selection) (string, error)
}

// NewLoadHandler returns a function to handle rates load tasks. It waits for the
// fetch so that Asynq records the task's real outcome.
func NewLoadHandler(loader Loader, logger *zap.SugaredLogger) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LoadPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Errorw("Invalid task payload", "type", t.Type(), "error", err)
			return nil
		}

		outcome, err := loader.Load(ctx, payload.Selection()).Wait(ctx)
		switch {
		case errors.Is(err, fetch.ErrSuperseded):
			logger.Infow("Task superseded by a newer fetch", "request_id", payload.RequestID)
			return nil
		case outcome.Result == fetch.ResultRejected:
			logger.Errorw("Task rejected", "request_id", payload.RequestID, "error", err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		case err != nil:
			logger.Errorw("Task processing failed", "request_id", payload.RequestID, "error", err)
			return err
		}

		logger.Infow("Task completed", "request_id", payload.RequestID, "entries", outcome.Entries)
		return nil
	}
}

// AsynqEnqueuer is responsible for enqueuing load tasks to an Asynq queue.
type AsynqEnqueuer struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewAsynqEnqueuer creates a new AsynqEnqueuer with the given client and task timeout duration.
func NewAsynqEnqueuer(client *asynq.Client, timeout time.Duration) *AsynqEnqueuer {
	return &AsynqEnqueuer{
		client:  client,
		timeout: timeout,
	}
}

// NewTask builds the Asynq task for sel. A failed fetch is not retried: the next
// load request supersedes it.
func NewTask(id string, sel model.Selection, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(LoadPayload{
		RequestID:      id,
		Currency:       sel.Currency,
		StartUTCMillis: sel.StartMillis,
		EndUTCMillis:   sel.EndMillis,
	})
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{asynq.MaxRetry(0), asynq.TaskID(id)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TaskTypeLoadRates, data, opts...), nil
}

// Dispatch enqueues a load task and returns its task id.
func (e *AsynqEnqueuer) Dispatch(ctx context.Context, sel model.Selection) (string, error) {
	id := uuid.NewString()
	task, err := NewTask(id, sel, e.timeout)
	if err != nil {
		return "", err
	}
	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", TaskTypeLoadRates, err)
	}
	return id, nil
}

// InlineDispatcher starts fetches directly on the orchestrator without waiting for them.
type InlineDispatcher struct {
	loader Loader
}

// NewInlineDispatcher creates an InlineDispatcher over loader.
func NewInlineDispatcher(loader Loader) *InlineDispatcher {
	return &InlineDispatcher{loader: loader}
}

// Dispatch starts the fetch and returns its request id. Invalid selections are
// reported synchronously.
func (d *InlineDispatcher) Dispatch(ctx context.Context, sel model.Selection) (string, error) {
	task := d.loader.Load(ctx, sel)
	select {
	case <-task.Done():
		outcome, err := task.Wait(ctx)
		if outcome.Result == fetch.ResultRejected {
			return "", err
		}
	default:
	}
	return strconv.FormatUint(task.ID, 10), nil
}

var (
	_ Dispatcher = (*AsynqEnqueuer)(nil)
	_ Dispatcher = (*InlineDispatcher)(nil)
)
