package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ratefeed/internal/config"
	"ratefeed/internal/currency"
	"ratefeed/internal/fetch"
	"ratefeed/internal/kvstore"
	"ratefeed/internal/persistence"
	"ratefeed/internal/query"
	"ratefeed/internal/scheduler"
	"ratefeed/internal/series"
	"ratefeed/internal/source"
	"ratefeed/internal/timezone"
	"ratefeed/internal/worker"
)

// pipeline is the fetch-normalize-cache core shared by every command.
type pipeline struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	offsetAt timezone.OffsetFunc
	kv       kvstore.Store
	src      source.Source
	srcClose func() error
	srcPing  func(ctx context.Context) error
	gateway  *persistence.Gateway
	store    *series.Store
	orch     *fetch.Orchestrator
}

// newPipeline connects storage and the source and seeds the series from the persisted cache.
func newPipeline(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*pipeline, error) {
	p := &pipeline{cfg: cfg, logger: logger}

	offsetAt, err := newOffsetFunc(cfg.Fetch.Timezone)
	if err != nil {
		return nil, err
	}
	p.offsetAt = offsetAt

	if err := p.initStorage(ctx); err != nil {
		_ = p.close()
		return nil, err
	}
	if err := p.initSource(ctx); err != nil {
		_ = p.close()
		return nil, err
	}

	p.gateway = persistence.NewGateway(p.kv, logger, persistence.Options{
		KeyPrefix:       cfg.Storage.KeyPrefix,
		DefaultCurrency: currency.Code(cfg.Fetch.DefaultCurrency),
		Lookback:        cfg.Fetch.Lookback(),
	})
	cached := p.gateway.Load(ctx)
	logger.Infow("Loaded cached series", "entries", len(cached))
	p.store = series.NewStore(cached)
	p.orch = fetch.New(
		p.src,
		query.NewBuilder(cfg.Source.Resource),
		p.store,
		p.gateway,
		p.offsetAt,
		logger,
		fetch.Options{DiscardStale: cfg.Fetch.DiscardStale, Timeout: cfg.Fetch.Timeout()},
	)
	return p, nil
}

func newOffsetFunc(name string) (timezone.OffsetFunc, error) {
	if name == "" {
		return timezone.Local(), nil
	}
	offsetAt, err := timezone.Load(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return offsetAt, nil
}

func (p *pipeline) initStorage(ctx context.Context) error {
	switch p.cfg.Storage.Kind {
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{Addr: p.cfg.Storage.RedisAddr})
		p.kv = kvstore.NewRedisStore(client)
		if err := p.kv.Ping(ctx); err != nil {
			return fmt.Errorf("connect to Redis (storage, %s): %w", p.cfg.Storage.RedisAddr, err)
		}
		p.logger.Infow("Connected to Redis storage", "addr", p.cfg.Storage.RedisAddr)
	default:
		store, err := kvstore.OpenSQLStore(ctx, p.cfg.Storage.Driver, p.cfg.Storage.DSN, p.logger)
		if err != nil {
			return fmt.Errorf("open %s storage: %w", p.cfg.Storage.Driver, err)
		}
		p.kv = store
		p.logger.Infow("Opened SQL storage", "driver", p.cfg.Storage.Driver)
	}
	return nil
}

func (p *pipeline) initSource(ctx context.Context) error {
	switch p.cfg.Source.Kind {
	case config.SourceSQL:
		src, err := source.OpenSQLSource(ctx, p.cfg.Source.Driver, p.cfg.Source.DSN, p.cfg.Source.Table)
		if err != nil {
			return fmt.Errorf("open %s source: %w", p.cfg.Source.Driver, err)
		}
		p.src, p.srcClose, p.srcPing = src, src.Close, src.Ping
		p.logger.Infow("Using SQL rates source", "driver", p.cfg.Source.Driver, "table", p.cfg.Source.Table)
	default:
		p.src = source.NewHTTPSource(p.cfg.Source.BaseURL, p.cfg.Source.Path, p.cfg.Source.TimeoutSec, p.cfg.Source.MaxBodyBytes)
		p.logger.Infow("Using HTTP rates source", "base_url", p.cfg.Source.BaseURL)
	}
	return nil
}

// close stops the orchestrator before the store so no completion lands on a closed store,
// then releases the source and storage connections.
func (p *pipeline) close() error {
	var errs []error
	if p.orch != nil {
		p.orch.Close()
	}
	if p.store != nil {
		p.store.Close()
	}
	if p.srcClose != nil {
		if err := p.srcClose(); err != nil {
			errs = append(errs, fmt.Errorf("source close: %w", err))
		}
	}
	if p.kv != nil {
		if err := p.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// App holds all server dependencies and manages their lifecycle.
type App struct {
	*pipeline
	rdbAsynq    *redis.Client
	asynqClient *asynq.Client
	asynqServer *asynq.Server
	asynqMux    *asynq.ServeMux
	dispatcher  worker.Dispatcher
	scheduler   *scheduler.Scheduler
	httpServer  *http.Server
	baseCtx     context.Context
	cancel      context.CancelFunc
}

// NewApp initializes all dependencies and returns a ready-to-run App.
func NewApp(cfg *config.Config, logger *zap.SugaredLogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := newPipeline(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	app := &App{pipeline: p, baseCtx: ctx, cancel: cancel}

	if err := app.initServices(); err != nil {
		_ = app.close()
		return nil, err
	}
	return app, nil
}

// close releases the task queue connections and the pipeline.
func (app *App) close() error {
	var errs []error
	app.cancel()
	if app.asynqClient != nil {
		if err := app.asynqClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("asynq client close: %w", err))
		}
	}
	if app.rdbAsynq != nil {
		if err := app.rdbAsynq.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis asynq close: %w", err))
		}
	}
	if err := app.pipeline.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (app *App) initServices() error {
	if app.cfg.Worker.Enabled {
		redisOpt := asynq.RedisClientOpt{Addr: app.cfg.Worker.RedisAddr}
		interval := time.Duration(app.cfg.Worker.CheckIntervalSec) * time.Second

		app.rdbAsynq = redis.NewClient(&redis.Options{Addr: app.cfg.Worker.RedisAddr})
		app.asynqClient = asynq.NewClient(redisOpt)
		app.asynqServer = asynq.NewServer(
			redisOpt,
			asynq.Config{
				Concurrency:              app.cfg.Worker.Concurrency,
				DelayedTaskCheckInterval: interval,
				TaskCheckInterval:        interval,
			},
		)
		app.asynqMux = asynq.NewServeMux()
		app.asynqMux.HandleFunc(worker.TaskTypeLoadRates, worker.NewLoadHandler(app.orch, app.logger))
		app.dispatcher = worker.NewAsynqEnqueuer(app.asynqClient, time.Duration(app.cfg.Worker.TimeoutSec)*time.Second)
		app.logger.Infow("Asynq configured", "addr", app.cfg.Worker.RedisAddr)
	} else {
		app.dispatcher = worker.NewInlineDispatcher(app.orch)
	}

	if spec := app.cfg.Scheduler.RefreshCron; spec != "" {
		app.scheduler = scheduler.New(app.baseCtx, func(ctx context.Context) error {
			_, err := app.orch.LoadPersisted(ctx).Wait(ctx)
			return err
		}, app.logger)
		if err := app.scheduler.Register(spec); err != nil {
			return err
		}
	}

	app.initHTTP()
	return nil
}

// Run starts the HTTP server, the Asynq worker and the scheduler, and triggers a
// fetch of the persisted selection. It blocks until the context is canceled.
func (app *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if app.asynqServer != nil {
		g.Go(func() error {
			app.logger.Infow("Starting Asynq worker server")
			if err := app.asynqServer.Start(app.asynqMux); err != nil {
				return fmt.Errorf("asynq worker failed to start: %w", err)
			}

			<-ctx.Done()
			return nil
		})
	}

	if app.scheduler != nil {
		app.scheduler.Start()
	}

	task := app.orch.LoadPersisted(app.baseCtx)
	app.logger.Infow("Initial fetch requested", "request_id", task.ID)

	g.Go(func() error {
		app.logger.Infow("HTTP server listening", "port", app.cfg.Server.Port)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown: triggered by context cancellation (signal or component failure).
	g.Go(func() error {
		<-ctx.Done()
		return app.shutdown()
	})

	return g.Wait()
}

// shutdown performs ordered teardown: HTTP server -> scheduler -> Asynq worker -> pipeline.
// In-flight fetches are cancelled and never reach the store after it closes.
func (app *App) shutdown() error {
	app.logger.Infow("Shutting down server...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 1. Stop accepting new HTTP requests, drain in-flight
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Errorw("HTTP server shutdown error", "error", err)
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// 2. Stop scheduled refreshes and drain Asynq tasks
	app.cancel()
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.asynqServer != nil {
		app.asynqServer.Shutdown()
	}

	// 3. Close the orchestrator, the store and connections
	if err := app.close(); err != nil {
		app.logger.Errorw("Connection cleanup errors", "error", err)
		errs = append(errs, err)
	}

	app.logger.Infow("Shutdown complete")
	return errors.Join(errs...)
}
