package sheets

import (
	"fmt"
	"strings"

	"cloudledger/internal/core"
)

// Decoded is the result of turning a Table into transactions.
type Decoded struct {
	Transactions []core.Transaction
	Dropped      int // rows discarded for an unparsable date
}

// Decode maps rows by header name. Rows with an unparsable date are dropped,
// unparsable amounts become zero. The result keeps sheet order.
func Decode(t Table) (Decoded, error) {
	cols := map[string]int{}
	for _, name := range []string{ColID, ColDate, ColCategory, ColType, ColAmount, ColSigned, ColPayment, ColNote} {
		cols[name] = ColumnIndex(t.Header, name)
	}
	if len(t.Rows) > 0 {
		var missing []string
		for _, name := range []string{ColDate, ColType, ColAmount} {
			if cols[name] == -1 {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return Decoded{}, fmt.Errorf("%w: %s; got headers=%v", ErrMissingColumn, strings.Join(missing, ","), t.Header)
		}
	}

	var out Decoded
	ordinals := map[string]int{}
	for _, row := range t.Rows {
		d, ok := core.ParseDate(CellAt(row, cols[ColDate]))
		if !ok {
			out.Dropped++
			continue
		}
		tx := core.Transaction{
			ID:            strings.TrimSpace(CellAt(row, cols[ColID])),
			Date:          d,
			Category:      strings.TrimSpace(CellAt(row, cols[ColCategory])),
			Type:          core.TxType(strings.TrimSpace(CellAt(row, cols[ColType]))),
			Amount:        core.ParseAmount(CellAt(row, cols[ColAmount])),
			PaymentMethod: core.PaymentMethod(strings.TrimSpace(CellAt(row, cols[ColPayment]))),
			Note:          CellAt(row, cols[ColNote]),
		}
		if cols[ColSigned] != -1 && strings.TrimSpace(CellAt(row, cols[ColSigned])) != "" {
			tx.SignedAmount = core.ParseAmount(CellAt(row, cols[ColSigned]))
		} else {
			tx.SignedAmount = tx.Type.Signed(tx.Amount)
		}
		if tx.ID == "" {
			key := strings.Join(row, "\x1f")
			tx.ID = core.LegacyID(row, ordinals[key])
			ordinals[key]++
		}
		out.Transactions = append(out.Transactions, tx)
	}
	return out, nil
}

// Encode renders transactions with the canonical header and date layout.
func Encode(txs []core.Transaction) Table {
	t := EmptyTable()
	t.Rows = make([][]string, 0, len(txs))
	for _, tx := range txs {
		t.Rows = append(t.Rows, []string{
			tx.Date.String(),
			tx.Category,
			string(tx.Type),
			core.FormatAmount(tx.Amount),
			core.FormatAmount(tx.SignedAmount),
			string(tx.PaymentMethod),
			tx.Note,
			tx.ID,
		})
	}
	return t
}

// ColumnIndex finds a column by name, ignoring case and surrounding space.
func ColumnIndex(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// CellAt returns row[i] or "" when the row is short.
func CellAt(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return row[i]
	}
	return ""
}
