package backend

import (
	"context"
	"errors"
	"fmt"

	"cloudledger/internal/adapters"
	"cloudledger/internal/amqp"
	"cloudledger/internal/log"
	gsheet "cloudledger/internal/sheets/google"
	"cloudledger/internal/sheets/memory"
	rstore "cloudledger/internal/sheets/redis"
	"cloudledger/internal/storage"
)

// Factory builds stores from a Config.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Create builds the store for config.Type.
func (f *Factory) Create(ctx context.Context, config Config) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLite(ctx, config)
	case SheetsBackend:
		res, err = f.createSheets(ctx, config)
	case RedisBackend:
		res, err = f.createRedis(ctx, config)
	case MemoryBackend:
		res = f.createMemory(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	f.logger.InfoContext(ctx, "Store ready", log.FieldBackend, config.Type.String())
	return res, nil
}

func (f *Factory) createSQLite(ctx context.Context, config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	if config.AMQPURL == "" {
		return &Result{Store: repo, Cleanup: repo.Close}, nil
	}

	client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue, config.AMQPMaxWait)
	if err != nil {
		// Writes still succeed; the worker's periodic reconcile catches up.
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without publishing",
			log.NewFields().WithError(err)...)
		return &Result{Store: adapters.NewPublishingStore(repo, nil), Cleanup: repo.Close}, nil
	}
	f.logger.InfoContext(ctx, "Publishing table writes",
		"exchange", config.AMQPExchange, "queue", config.AMQPQueue)

	return &Result{
		Store: adapters.NewPublishingStore(repo, client),
		Cleanup: func() error {
			return errors.Join(client.Close(), repo.Close())
		},
	}, nil
}

func (f *Factory) createSheets(ctx context.Context, config Config) (*Result, error) {
	client, err := NewSheetsClient(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Result{Store: client}, nil
}

// NewSheetsClient builds a Google Sheets store. The sync worker uses it as
// its mirror target regardless of DATA_BACKEND.
func NewSheetsClient(ctx context.Context, config Config) (*gsheet.Client, error) {
	opts, err := config.GoogleCredentials.ClientOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("google credentials: %w", err)
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID: config.GoogleSpreadsheetID,
		SheetName:     config.GoogleSheetName,
		CacheTTL:      config.SheetsCacheTTL,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return client, nil
}

func (f *Factory) createRedis(ctx context.Context, config Config) (*Result, error) {
	client, err := rstore.NewClient(ctx, config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Result{Store: rstore.New(client, config.RedisKey), Cleanup: client.Close}, nil
}

func (f *Factory) createMemory(config Config) *Result {
	dir := config.DataDirectory
	if dir == "" {
		dir = "data"
	}
	f.logger.Info("Seeding memory store", "data_directory", dir)
	return &Result{Store: memory.NewFromDir(dir)}
}
