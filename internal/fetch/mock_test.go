package fetch

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ratefeed/internal/model"
	"ratefeed/internal/query"
	"ratefeed/internal/source"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Query(ctx context.Context, req query.Request) (source.Cursor, error) {
	args := m.Called(ctx, req)
	cur, _ := args.Get(0).(source.Cursor)
	return cur, args.Error(1)
}

type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Save(ctx context.Context, entries []model.Entry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *MockPersister) LoadSelection(ctx context.Context) model.Selection {
	args := m.Called(ctx)
	return args.Get(0).(model.Selection)
}

// forCurrency matches requests for one currency.
func forCurrency(code string) interface{} {
	return mock.MatchedBy(func(req query.Request) bool {
		return req.Get(query.ParamCurrency) == code
	})
}
