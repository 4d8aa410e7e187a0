package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegister_InvalidSpec(t *testing.T) {
	s := New(context.Background(), func(context.Context) error { return nil }, zap.NewNop().Sugar())
	err := s.Register("every tuesday")
	assert.Error(t, err)
}

func TestRunNow(t *testing.T) {
	wantErr := errors.New("boom")
	s := New(context.Background(), func(context.Context) error { return wantErr }, zap.NewNop().Sugar())
	assert.ErrorIs(t, s.RunNow(), wantErr)
}

func TestScheduler_RunsRefresh(t *testing.T) {
	var calls atomic.Int32
	fired := make(chan struct{}, 1)
	s := New(context.Background(), func(context.Context) error {
		calls.Add(1)
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}, zap.NewNop().Sugar())

	require.NoError(t, s.Register("* * * * * *"))
	s.Start()
	defer s.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("refresh did not run")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestStop_WaitsForRunningRefresh(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	s := New(context.Background(), func(context.Context) error {
		select {
		case started <- struct{}{}:
		default:
			return nil
		}
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	}, zap.NewNop().Sugar())

	require.NoError(t, s.Register("* * * * * *"))
	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("refresh did not run")
	}
	s.Stop()
	assert.True(t, finished.Load())
}
