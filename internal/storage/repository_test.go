package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	ports "cloudledger/internal/sheets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepository_EmptyAfterMigrate(t *testing.T) {
	repo := newTestRepo(t)
	tbl, err := repo.ReadTable(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tbl.Rows)
	assert.Equal(t, ports.Header, tbl.Header)
	assert.Equal(t, "0", tbl.Revision)
}

func TestSQLiteRepository_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	// Columns out of canonical order are mapped by name.
	in := ports.Table{
		Header: []string{"金額", "日期", "收支類型", "分類項目", "ID"},
		Rows: [][]string{
			{"100", "2024-01-05", "支出", "飲食", "a"},
			{"5000", "2024-01-10", "收入", "薪資", "b"},
		},
	}
	rev, err := repo.WriteTable(ctx, in, "0")
	require.NoError(t, err)
	assert.Equal(t, "1", rev)

	out, err := repo.ReadTable(ctx)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "2024-01-05", ports.CellAt(out.Rows[0], ports.ColumnIndex(out.Header, ports.ColDate)))
	assert.Equal(t, "薪資", ports.CellAt(out.Rows[1], ports.ColumnIndex(out.Header, ports.ColCategory)))
	assert.Equal(t, "b", ports.CellAt(out.Rows[1], ports.ColumnIndex(out.Header, ports.ColID)))
	assert.Equal(t, "1", out.Revision)
}

func TestSQLiteRepository_StaleRevisionConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	tbl := ports.Table{Header: ports.Header, Rows: [][]string{{"2024-01-05"}}}

	_, err := repo.WriteTable(ctx, tbl, "0")
	require.NoError(t, err)
	_, err = repo.WriteTable(ctx, tbl, "0")
	assert.True(t, errors.Is(err, ports.ErrConflict), "got %v", err)

	// Conflict leaves the stored rows untouched.
	out, err := repo.ReadTable(ctx)
	require.NoError(t, err)
	assert.Len(t, out.Rows, 1)
	assert.Equal(t, "1", out.Revision)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}
