package main

import (
	"context"
	"errors"
	"os"
	"time"

	"cloudledger/internal/amqp"
	"cloudledger/internal/backend"
	"cloudledger/internal/cli"
	"cloudledger/internal/log"
	"cloudledger/internal/metrics"
	"cloudledger/internal/storage"
	"cloudledger/internal/worker"
)

// ledger-worker mirrors the SQLite table into the Google Sheet whenever the
// web server announces a write, and on a fixed interval.
func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker, os.Stdout)
	logger.Info("Starting ledger-worker", log.FieldOperation, log.OpStartup)

	if !cfg.MirrorEnabled() {
		cli.Fatal(logger, "Nothing to mirror", errors.New("GOOGLE_SPREADSHEET_ID and Google credentials are required"))
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize SQLite repository", err)
	}
	defer repo.Close()

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	// The mirror must see every write, so its reads are never cached.
	bc.SheetsCacheTTL = 0
	sheet, err := backend.NewSheetsClient(context.Background(), bc)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, time.Minute)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer client.Close()
		consumer = client
	} else {
		logger.Warn("AMQP_URL not set, mirroring only on SYNC_INTERVAL", "interval", cfg.SyncInterval)
	}

	w := worker.NewSyncWorker(repo, sheet, logger, metrics.New(nil))
	if err := w.Run(ctx, consumer, cfg.SyncInterval); err != nil && ctx.Err() == nil {
		cli.Fatal(logger, "Worker stopped", err)
	}

	cli.WaitForShutdown(ctx, done)
}
