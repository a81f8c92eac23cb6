//go:generate mockgen -source=ports.go -destination=mocks/mock_store.go -package=mocks

package sheets

import (
	"context"
	"errors"
)

// Canonical column names of the transaction worksheet.
const (
	ColID       = "ID"
	ColDate     = "日期"
	ColCategory = "分類項目"
	ColType     = "收支類型"
	ColAmount   = "金額"
	ColSigned   = "結餘"
	ColPayment  = "支出方式"
	ColNote     = "備註"
)

// Header is the layout every full-table write uses.
var Header = []string{ColDate, ColCategory, ColType, ColAmount, ColSigned, ColPayment, ColNote, ColID}

// ErrConflict is returned when a write is based on a stale revision.
var ErrConflict = errors.New("table changed since it was read")

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("missing required column")

// Ports for outbound adapters.
type (
	// Table is a full snapshot of the worksheet. Revision is an opaque
	// token identifying the content that was read.
	Table struct {
		Header   []string
		Rows     [][]string
		Revision string
	}

	TableReader interface {
		ReadTable(ctx context.Context) (Table, error)
	}

	// TableWriter replaces the whole table. A non-empty expectedRevision
	// must match the stored revision or ErrConflict is returned.
	TableWriter interface {
		WriteTable(ctx context.Context, t Table, expectedRevision string) (revision string, err error)
	}

	Store interface {
		TableReader
		TableWriter
	}
)

// EmptyTable returns a table with the canonical header and no rows.
func EmptyTable() Table {
	return Table{Header: append([]string(nil), Header...)}
}
