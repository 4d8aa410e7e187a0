//go:build integration

package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ratefeed/internal/fetch"
	"ratefeed/internal/kvstore"
	"ratefeed/internal/persistence"
	"ratefeed/internal/query"
	"ratefeed/internal/series"
	"ratefeed/internal/source"
	"ratefeed/internal/testkit"
	"ratefeed/internal/timezone"
)

var (
	testDB  *sql.DB
	testRDB *redis.Client
)

// resetTestData reseeds the provider table and flushes the storage Redis database.
func resetTestData(t *testing.T, rates ...testkit.Rate) {
	t.Helper()

	if err := testkit.SeedRates(context.Background(), testDB, testkit.Global().RatesTable(), rates...); err != nil {
		t.Fatalf("failed to seed rates: %v", err)
	}

	if err := testRDB.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

// testContext returns a context with a 30-second deadline tied to the test's cleanup.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// pipeline wires the Postgres source, the Redis-backed gateway, a store and an orchestrator.
type pipeline struct {
	gateway *persistence.Gateway
	store   *series.Store
	orch    *fetch.Orchestrator
}

func newPipeline(t *testing.T, offsetAt timezone.OffsetFunc) *pipeline {
	t.Helper()
	logger := zap.NewNop().Sugar()

	src, err := source.NewSQLSource(testDB, "pgx", testkit.Global().RatesTable())
	if err != nil {
		t.Fatalf("NewSQLSource: %v", err)
	}
	gateway := persistence.NewGateway(kvstore.NewRedisStore(testRDB), logger, persistence.Options{})
	store := series.NewStore(gateway.Load(context.Background()))
	orch := fetch.New(src, query.NewBuilder(""), store, gateway, offsetAt, logger, fetch.Options{DiscardStale: true})
	t.Cleanup(func() {
		orch.Close()
		store.Close()
	})
	return &pipeline{gateway: gateway, store: store, orch: orch}
}
