package fetch

import (
	"context"
	"time"

	"ratefeed/internal/model"
)

// State is the orchestrator's activity.
type State string

// Orchestrator states. After a fetch completes the orchestrator is Idle again and
// the completion is reported through Status.Last.
const (
	StateIdle     State = "IDLE"
	StateFetching State = "FETCHING"
)

// Result is how one fetch ended.
type Result string

// Fetch results.
const (
	ResultSucceeded Result = "SUCCEEDED"
	ResultFailed    Result = "FAILED"
	// ResultDiscarded: the fetch completed but its series was not applied.
	ResultDiscarded Result = "DISCARDED"
	// ResultRejected: the selection was invalid, nothing was fetched.
	ResultRejected Result = "REJECTED"
)

// Outcome describes one completed fetch.
type Outcome struct {
	RequestID  uint64
	Selection  model.Selection
	Result     Result
	Err        error
	Rows       int
	Entries    int
	Skipped    int
	FinishedAt time.Time
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State    State
	InFlight int
	Last     *Outcome
}

// Task is the future of one Load call.
type Task struct {
	ID      uint64
	done    chan struct{}
	outcome Outcome
}

func newTask(id uint64) *Task {
	return &Task{ID: id, done: make(chan struct{})}
}

func completedTask(id uint64, outcome Outcome) *Task {
	t := newTask(id)
	t.complete(outcome)
	return t
}

func (t *Task) complete(outcome Outcome) {
	t.outcome = outcome
	close(t.done)
}

// Done is closed when the fetch has completed.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the fetch completes or ctx ends. The error is the fetch's
// error, or ctx.Err() if ctx ended first.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.outcome.Err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
