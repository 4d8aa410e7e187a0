package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"ratefeed/internal/api"
	"ratefeed/internal/api/middleware"
)

func (app *App) initHTTP() {
	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLoggingMiddleware(app.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/rates", api.HandleGetRates(app.store, app.orch))
	r.Get("/rates/stream", api.HandleStreamRates(app.store, app.logger))
	r.Post("/rates/load", api.HandleLoadRates(app.dispatcher))
	r.Get("/selection", api.HandleGetSelection(app.gateway))
	r.Put("/selection", api.HandlePutSelection(app.gateway, app.dispatcher, app.offsetAt))
	r.Get("/currencies", api.HandleListCurrencies())
	r.Get("/healthz", api.HandleHealthz())
	r.Get("/readyz", api.HandleReadyz(app.readinessChecks()...))

	if app.cfg.Server.ServeSwagger {
		r.Get("/swagger/*", api.SwaggerUIHandler())
		r.Get("/openapi.json", api.OpenAPISpecHandler())
	}
	if app.cfg.Server.ServeAsynqmon && app.cfg.Worker.Enabled {
		mon := api.AsynqmonHandler(app.cfg.Worker.RedisAddr)
		r.Handle(mon.RootPath()+"/*", mon)
	}

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Shutdown does not cancel request contexts; rate streams would keep it waiting.
	reqCtx, stopRequests := context.WithCancel(context.Background())
	app.httpServer.BaseContext = func(net.Listener) context.Context { return reqCtx }
	app.httpServer.RegisterOnShutdown(stopRequests)
}

func (app *App) readinessChecks() []api.Check {
	checks := []api.Check{{Name: "Storage", Ping: app.kv.Ping}}
	if app.srcPing != nil {
		checks = append(checks, api.Check{Name: "Source", Ping: app.srcPing})
	}
	if app.rdbAsynq != nil {
		checks = append(checks, api.Check{Name: "Asynq Redis", Ping: func(ctx context.Context) error {
			return app.rdbAsynq.Ping(ctx).Err()
		}})
	}
	return checks
}
