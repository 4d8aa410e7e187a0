package testkit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Suite owns the Postgres provider database and the Redis instance shared by a test binary.
type Suite struct {
	mu    sync.Mutex
	cfg   Config
	pg    *PostgresModule
	redis *RedisModule
	ready bool
}

var (
	globalSuite *Suite
	globalOnce  sync.Once
)

// Global returns the suite configured from RATEFEED_TEST_* variables.
func Global() *Suite {
	globalOnce.Do(func() {
		globalSuite = &Suite{cfg: LoadConfig()}
	})
	return globalSuite
}

// Setup starts Postgres and Redis side by side. A failure of either tears the
// other down unless containers are kept.
func (s *Suite) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return errors.New("suite already set up; call Shutdown first")
	}

	var (
		pg  *PostgresModule
		rdb *RedisModule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pg, err = StartPostgres(gctx, &s.cfg)
		if err != nil {
			return fmt.Errorf("setup postgres: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		rdb, err = StartRedis(gctx, &s.cfg)
		if err != nil {
			return fmt.Errorf("setup redis: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if !s.cfg.KeepContainers {
			if pg != nil {
				_ = pg.Terminate(ctx)
			}
			if rdb != nil {
				_ = rdb.Terminate(ctx)
			}
		}
		return err
	}

	s.pg, s.redis, s.ready = pg, rdb, true
	return nil
}

// Shutdown terminates the containers unless RATEFEED_TEST_KEEP_CONTAINERS is set,
// in which case their addresses are printed for reuse via RATEFEED_TEST_PG_DSN and
// RATEFEED_TEST_REDIS_ADDR.
func (s *Suite) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}
	s.ready = false

	if s.cfg.KeepContainers {
		fmt.Printf("keeping containers: %sPG_DSN=%s %sREDIS_ADDR=%s\n",
			envPrefix, s.pg.DSN(), envPrefix, s.redis.Addr())
		return nil
	}

	var errs []error
	if err := s.redis.Terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("terminate redis: %w", err))
	}
	if err := s.pg.Terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("terminate postgres: %w", err))
	}
	return errors.Join(errs...)
}

// PostgresDSN returns the connection string of the provider database.
func (s *Suite) PostgresDSN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pg == nil {
		return ""
	}
	return s.pg.DSN()
}

// RatesTable returns the provider table name the integration tests seed.
func (s *Suite) RatesTable() string {
	return s.cfg.RatesTable
}

// RedisAddr returns the host:port of the Redis instance.
func (s *Suite) RedisAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redis == nil {
		return ""
	}
	return s.redis.Addr()
}

// RedisOptions returns client options for one logical database (StorageDB or QueueDB).
func (s *Suite) RedisOptions(db int) *redis.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redis == nil {
		return &redis.Options{DB: db}
	}
	return s.redis.Options(db)
}

// Run sets up the suite, runs afterSetup (creating the rates table, opening
// clients), executes the tests and shuts down. Intended for TestMain.
func (s *Suite) Run(m *testing.M, afterSetup ...func() error) {
	ctx := context.Background()

	if err := s.Setup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "integration test setup failed: %v\n", err)
		os.Exit(1)
	}

	for _, fn := range afterSetup {
		if err := fn(); err != nil {
			fmt.Fprintf(os.Stderr, "integration test preparation failed: %v\n", err)
			_ = s.Shutdown(ctx)
			os.Exit(1)
		}
	}

	code := m.Run()

	if err := s.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	os.Exit(code)
}

// Run delegates to Global().Run.
func Run(m *testing.M, afterSetup ...func() error) {
	Global().Run(m, afterSetup...)
}
