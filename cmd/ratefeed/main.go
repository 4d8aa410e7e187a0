// Package main is the entry point for the exchange rate feed.
//
// @title Exchange Rate Feed API
// @version 1.0
// @description Fetches, normalizes and caches exchange rate series for a selected currency and date range.
// @BasePath /
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	_ "ratefeed/internal/api/docs"
	"ratefeed/internal/config"
)

var debug bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "ratefeed",
		Short:         "Exchange rate series fetcher and cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Development logging at debug level")

	rootCmd.AddCommand(
		serveCmd(),
		fetchCmd(),
		showCmd(),
		currenciesCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.SugaredLogger, func(), error) {
	var (
		zapLogger *zap.Logger
		err       error
	)
	if debug {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return zapLogger.Sugar(), func() { _ = zapLogger.Sync() }, nil
}

// setup loads the configuration and the logger every command needs.
func setup() (*config.Config, *zap.SugaredLogger, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, sync, err := newLogger()
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, sync, nil
}
