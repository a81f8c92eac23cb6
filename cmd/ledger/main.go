package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cloudledger/internal/cli"
	apphttp "cloudledger/internal/http"
	"cloudledger/internal/log"
	"cloudledger/internal/metrics"
	"cloudledger/internal/services"
)

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp, os.Stdout)

	store, err := cli.OpenStore(context.Background(), logger, cfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize store", err)
	}

	m := metrics.New(nil)
	ledger := services.NewLedger(store.Store, services.WithLogger(logger), services.WithMetrics(m))

	srv, err := apphttp.NewServer(":"+cfg.Port, ledger, apphttp.Options{
		Logger:             logger,
		Metrics:            m,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		StoreTimeout:       cfg.StoreTimeout,
		TrustedProxies:     cfg.TrustedProxies,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to build HTTP server", err)
	}
	srv.ReadTimeout = 15 * time.Second
	srv.WriteTimeout = cfg.StoreTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.NewFields().WithError(err)...)
		}
		if err := store.Close(); err != nil {
			logger.Error("Store cleanup error", log.NewFields().WithError(err)...)
		}
	})

	logger.Info("Starting ledger server",
		log.FieldOperation, log.OpStartup, "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
