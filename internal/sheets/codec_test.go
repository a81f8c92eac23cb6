package sheets

import (
	"errors"
	"testing"

	"cloudledger/internal/core"

	"github.com/shopspring/decimal"
)

func TestDecodeDropsBadDatesAndDefaultsAmounts(t *testing.T) {
	tbl := Table{
		Header: []string{"日期", "分類項目", "收支類型", "金額", "結餘", "支出方式", "備註"},
		Rows: [][]string{
			{"2024-01-05", "飲食", "支出", "100", "-100", "現金", "lunch"},
			{"not a date", "飲食", "支出", "50", "-50", "現金", ""},
			{"2024/01/10", "薪資", "收入", "5,000", "", " ", ""},
			{"2024-01-11", "交通", "支出", "??", "", "現金"},
		},
	}
	got, err := Decode(tbl)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Dropped != 1 {
		t.Fatalf("expected 1 dropped row, got %d", got.Dropped)
	}
	if len(got.Transactions) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got.Transactions))
	}
	inc := got.Transactions[1]
	if !inc.Amount.Equal(decimal.NewFromInt(5000)) || !inc.SignedAmount.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("income amounts wrong: %v %v", inc.Amount, inc.SignedAmount)
	}
	if inc.PaymentMethod != core.NoPayment {
		t.Fatalf("expected blank payment for income, got %q", inc.PaymentMethod)
	}
	if !got.Transactions[2].Amount.IsZero() {
		t.Fatalf("unparsable amount should be zero, got %v", got.Transactions[2].Amount)
	}
	for _, tx := range got.Transactions {
		if tx.ID == "" {
			t.Fatalf("legacy rows must get a derived id")
		}
	}
}

func TestDecodeDuplicateRowsGetDistinctIDs(t *testing.T) {
	row := []string{"2024-01-05", "飲食", "支出", "100", "-100", "現金", ""}
	got, err := Decode(Table{Header: Header[:7], Rows: [][]string{row, row}})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Transactions[0].ID == got.Transactions[1].ID {
		t.Fatalf("duplicate rows share id %q", got.Transactions[0].ID)
	}
}

func TestDecodeMissingColumn(t *testing.T) {
	_, err := Decode(Table{Header: []string{"日期", "分類項目"}, Rows: [][]string{{"2024-01-05", "飲食"}}})
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	// An empty sheet with a bare header is fine.
	if _, err := Decode(Table{Header: []string{"日期"}}); err != nil {
		t.Fatalf("empty table should decode: %v", err)
	}
}

func TestEncodeRoundTripKeepsIDAndLayout(t *testing.T) {
	tx, err := core.NewTransaction{
		Date: core.NewDate(2024, 3, 9), Category: "購物", Type: core.Expense,
		Amount: decimal.RequireFromString("120.50"), PaymentMethod: core.CreditCard, Note: "shoes",
	}.Build("01HX")
	if err != nil {
		t.Fatal(err)
	}
	tbl := Encode([]core.Transaction{tx})
	if got := tbl.Rows[0][0]; got != "2024-03-09" {
		t.Fatalf("date layout: %q", got)
	}
	if got := tbl.Rows[0][4]; got != "-120.5" {
		t.Fatalf("signed amount: %q", got)
	}
	back, err := Decode(tbl)
	if err != nil {
		t.Fatal(err)
	}
	if back.Transactions[0].ID != "01HX" || back.Transactions[0].Note != "shoes" {
		t.Fatalf("unexpected decode: %+v", back.Transactions[0])
	}
}
