package backend

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudledger/internal/adapters"
	"cloudledger/internal/config"
	"cloudledger/internal/log"
	ports "cloudledger/internal/sheets"
	"cloudledger/internal/sheets/memory"
	"cloudledger/internal/storage"
)

func quietFactory() *Factory {
	return NewFactory(log.New(log.Config{Output: io.Discard}))
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:              "sheets",
		DataDir:                  "/tmp/ledger",
		GoogleSpreadsheetID:      "sheet-id",
		GoogleSheetName:          "記帳",
		GoogleServiceAccountJSON: `{"type":"service_account"}`,
		RedisKey:                 "k",
	}
	bc, err := FromAppConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, SheetsBackend, bc.Type)
	assert.Equal(t, "sheet-id", bc.GoogleSpreadsheetID)
	assert.Equal(t, `{"type":"service_account"}`, bc.GoogleCredentials.ServiceAccountJSON)
	assert.Equal(t, "/tmp/ledger", bc.DataDirectory)

	_, err = FromAppConfig(&config.Config{DataBackend: "postgres"})
	assert.Error(t, err)
	_, err = FromAppConfig(nil)
	assert.Error(t, err)
}

func TestBackendTypes(t *testing.T) {
	assert.Equal(t, []string{"sqlite", "sheets", "redis", "memory"}, GetBackendTypeStrings())
	assert.True(t, RedisBackend.IsValid())
	assert.False(t, BackendType("csv").IsValid())
}

func TestCreateMemory(t *testing.T) {
	dir := t.TempDir()
	seed := "日期,分類項目,收支類型,金額,結餘,支出方式,備註,ID\n2024-01-05,飲食,支出,100,-100,現金,,a\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, memory.SeedFile), []byte(seed), 0o644))

	res, err := quietFactory().Create(context.Background(), Config{Type: MemoryBackend, DataDirectory: dir})
	require.NoError(t, err)
	defer res.Close()

	tbl, err := res.Store.ReadTable(context.Background())
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)
}

func TestCreateSQLiteWithoutAMQP(t *testing.T) {
	res, err := quietFactory().Create(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
	})
	require.NoError(t, err)
	defer res.Close()

	_, ok := res.Store.(*storage.SQLiteRepository)
	assert.True(t, ok, "expected a bare SQLite store, got %T", res.Store)
}

func TestCreateRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	res, err := quietFactory().Create(context.Background(), Config{
		Type:     RedisBackend,
		RedisURL: "redis://" + mr.Addr(),
		RedisKey: "test:table",
	})
	require.NoError(t, err)
	defer res.Close()

	rev, err := res.Store.WriteTable(context.Background(), ports.EmptyTable(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, rev)
	assert.True(t, mr.Exists("test:table"))
}

func TestCreateSheetsNeedsCredentials(t *testing.T) {
	_, err := quietFactory().Create(context.Background(), Config{Type: SheetsBackend, GoogleSpreadsheetID: "x"})
	assert.Error(t, err)
}

func TestCreateUnknown(t *testing.T) {
	_, err := quietFactory().Create(context.Background(), Config{Type: "csv"})
	assert.Error(t, err)
}

func TestResultClose(t *testing.T) {
	var nilResult *Result
	assert.NoError(t, nilResult.Close())

	called := false
	r := &Result{Store: adapters.NewPublishingStore(memory.New(ports.EmptyTable()), nil), Cleanup: func() error {
		called = true
		return nil
	}}
	assert.NoError(t, r.Close())
	assert.True(t, called)
}
