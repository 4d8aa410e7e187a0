package api

import (
	"context"

	"ratefeed/internal/fetch"
	"ratefeed/internal/model"
	"ratefeed/internal/series"
)

// mockSeries implements Series for testing.
type mockSeries struct {
	entries []model.Entry
}

func (m *mockSeries) Current() []model.Entry { return m.entries }

func (m *mockSeries) Subscribe(obs series.Observer) func() {
	obs(m.entries)
	return func() {}
}

// mockStatus implements StatusReporter for testing.
type mockStatus struct {
	status fetch.Status
}

func (m *mockStatus) Status() fetch.Status { return m.status }

// mockDispatcher implements Dispatcher for testing.
type mockDispatcher struct {
	dispatchFunc func(ctx context.Context, sel model.Selection) (string, error)
	calls        []model.Selection
}

func (m *mockDispatcher) Dispatch(ctx context.Context, sel model.Selection) (string, error) {
	m.calls = append(m.calls, sel)
	return m.dispatchFunc(ctx, sel)
}

// mockSelectionStore implements SelectionStore for testing.
type mockSelectionStore struct {
	sel     model.Selection
	saveErr error
	saved   []model.Selection
}

func (m *mockSelectionStore) LoadSelection(_ context.Context) model.Selection { return m.sel }

func (m *mockSelectionStore) SaveSelection(_ context.Context, sel model.Selection) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, sel)
	m.sel = sel
	return nil
}
