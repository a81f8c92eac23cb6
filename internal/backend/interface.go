// Package backend builds the table store selected by DATA_BACKEND.
package backend

import (
	"time"

	ports "cloudledger/internal/sheets"
	gsheet "cloudledger/internal/sheets/google"
)

// CleanupFunc releases the resources held by a store.
type CleanupFunc func() error

// Result contains the store and an optional cleanup function.
type Result struct {
	Store   ports.Store
	Cleanup CleanupFunc
}

// Close runs Cleanup when set.
func (r *Result) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Config holds everything the factory needs to build any backend.
type Config struct {
	Type BackendType

	// SQLite, with optional AMQP publishing of completed writes.
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	AMQPMaxWait  time.Duration

	// Redis
	RedisURL string
	RedisKey string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleSheetName     string
	GoogleCredentials   gsheet.Credentials
	SheetsCacheTTL      time.Duration

	// Memory
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	RedisBackend  BackendType = "redis"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	for _, t := range GetBackendTypes() {
		if t == bt {
			return true
		}
	}
	return false
}
