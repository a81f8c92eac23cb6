package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TxType = "收入"
	Expense TxType = "支出"
)

const (
	Cash         PaymentMethod = "現金"
	CreditCard   PaymentMethod = "信用卡"
	BankTransfer PaymentMethod = "轉帳"
	NoPayment    PaymentMethod = ""
)

// DateLayout is the canonical persisted date format.
const DateLayout = "2006-01-02"

type (
	TxType        string
	PaymentMethod string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID            string
		Date          Date
		Category      string
		Type          TxType
		Amount        decimal.Decimal
		SignedAmount  decimal.Decimal
		PaymentMethod PaymentMethod
		Note          string
	}

	// NewTransaction is the user input for an append, before an id and
	// signed amount are assigned.
	NewTransaction struct {
		Date          Date
		Category      string
		Type          TxType
		Amount        decimal.Decimal
		PaymentMethod PaymentMethod
		Note          string
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrAmountPrecision = errors.New("amount has more than two decimal places")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidCategory = errors.New("invalid category for type")
	ErrInvalidPayment  = errors.New("invalid payment method")
	ErrNoteTooLong     = errors.New("note too long (max 200 characters)")
	ErrIndexOutOfRange = errors.New("transaction index out of range")
	ErrNotFound        = errors.New("transaction not found")
)

func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Year() int  { return d.Time.Year() }
func (d Date) Month() int { return int(d.Time.Month()) }
func (d Date) Day() int   { return d.Time.Day() }

// String renders the date in the persisted layout.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the YYYY-MM period the date belongs to.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

func (t TxType) English() string {
	switch t {
	case Income:
		return "income"
	case Expense:
		return "expense"
	}
	return string(t)
}

// ParseTxType accepts the stored labels as well as "income"/"expense".
func ParseTxType(s string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(Income), "income":
		return Income, nil
	case string(Expense), "expense":
		return Expense, nil
	}
	return "", ErrInvalidType
}

// Signed returns amount with the sign implied by the type.
func (t TxType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == Expense {
		return amount.Neg()
	}
	return amount
}

func (n NewTransaction) Validate() error {
	if n.Date.IsZero() {
		return ErrInvalidDate
	}
	if !n.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !n.Amount.Equal(n.Amount.Round(AmountPlaces)) {
		return ErrAmountPrecision
	}
	if !n.Type.Valid() {
		return ErrInvalidType
	}
	if !IsCategory(n.Type, n.Category) {
		return ErrInvalidCategory
	}
	if !ValidPayment(n.Type, n.PaymentMethod) {
		return ErrInvalidPayment
	}
	if len([]rune(n.Note)) > 200 {
		return ErrNoteTooLong
	}
	return nil
}

// Build validates the input and returns the transaction to persist.
func (n NewTransaction) Build(id string) (Transaction, error) {
	if err := n.Validate(); err != nil {
		return Transaction{}, err
	}
	pm := n.PaymentMethod
	if n.Type == Income {
		pm = NoPayment
	}
	// Same form as a reload of the stored cell, e.g. 100.50 becomes 100.5.
	amount := ParseAmount(FormatAmount(n.Amount))
	return Transaction{
		ID:            id,
		Date:          n.Date,
		Category:      n.Category,
		Type:          n.Type,
		Amount:        amount,
		SignedAmount:  n.Type.Signed(amount),
		PaymentMethod: pm,
		Note:          strings.TrimSpace(n.Note),
	}, nil
}

// Input is the raw text of an entry form or command line.
type Input struct {
	Date, Type, Category, Amount, Payment, Note string
}

// Parse converts raw input into a validated NewTransaction. A blank date
// means today.
func (in Input) Parse(today time.Time) (NewTransaction, error) {
	date := NewDate(today.Year(), int(today.Month()), today.Day())
	if strings.TrimSpace(in.Date) != "" {
		d, ok := ParseDate(in.Date)
		if !ok {
			return NewTransaction{}, ErrInvalidDate
		}
		date = d
	}
	typ, err := ParseTxType(in.Type)
	if err != nil {
		return NewTransaction{}, err
	}
	amount, err := ParseInputAmount(in.Amount)
	if err != nil {
		return NewTransaction{}, err
	}
	n := NewTransaction{
		Date:          date,
		Category:      strings.TrimSpace(in.Category),
		Type:          typ,
		Amount:        amount,
		PaymentMethod: PaymentMethod(strings.TrimSpace(in.Payment)),
		Note:          strings.TrimSpace(in.Note),
	}
	if typ == Income {
		n.PaymentMethod = NoPayment
	}
	return n, n.Validate()
}
