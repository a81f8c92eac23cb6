package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	ports "cloudledger/internal/sheets"

	_ "modernc.org/sqlite"
)

// columns maps table header names to SQL columns, in persisted order.
var columns = []struct{ header, sql string }{
	{ports.ColDate, "tx_date"},
	{ports.ColCategory, "category"},
	{ports.ColType, "tx_type"},
	{ports.ColAmount, "amount"},
	{ports.ColSigned, "signed_amount"},
	{ports.ColPayment, "payment_method"},
	{ports.ColNote, "note"},
	{ports.ColID, "tx_id"},
}

// SQLiteRepository stores the ledger table row by row. The table revision
// is a counter bumped by every write.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ports.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) ReadTable(ctx context.Context) (ports.Table, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.Table{}, fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	rev, err := currentRevision(ctx, tx)
	if err != nil {
		return ports.Table{}, err
	}

	rows, err := tx.QueryContext(ctx, `SELECT tx_date, category, tx_type, amount, signed_amount, payment_method, note, tx_id
		FROM ledger_rows ORDER BY position`)
	if err != nil {
		return ports.Table{}, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	t := ports.EmptyTable()
	t.Revision = strconv.FormatInt(rev, 10)
	for rows.Next() {
		cells := make([]string, len(columns))
		dest := make([]any, len(cells))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return ports.Table{}, fmt.Errorf("scan row: %w", err)
		}
		t.Rows = append(t.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return ports.Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}

// WriteTable replaces every row in one transaction. Columns are matched by
// header name; unknown columns are ignored.
func (r *SQLiteRepository) WriteTable(ctx context.Context, t ports.Table, expected string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	rev, err := currentRevision(ctx, tx)
	if err != nil {
		return "", err
	}
	if expected != "" && expected != strconv.FormatInt(rev, 10) {
		return "", ports.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_rows`); err != nil {
		return "", fmt.Errorf("clear rows: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_rows
		(position, tx_date, category, tx_type, amount, signed_amount, payment_method, note, tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = ports.ColumnIndex(t.Header, c.header)
	}
	for pos, row := range t.Rows {
		args := make([]any, 0, len(columns)+1)
		args = append(args, pos)
		for _, i := range idx {
			args = append(args, ports.CellAt(row, i))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return "", fmt.Errorf("insert row %d: %w", pos, err)
		}
	}

	rev++
	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_meta SET revision = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1`, rev); err != nil {
		return "", fmt.Errorf("bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Ledger table written to SQLite", "rows", len(t.Rows), "revision", rev)
	return strconv.FormatInt(rev, 10), nil
}

func currentRevision(ctx context.Context, tx *sql.Tx) (int64, error) {
	var rev int64
	if err := tx.QueryRowContext(ctx, `SELECT revision FROM ledger_meta WHERE id = 1`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return rev, nil
}
