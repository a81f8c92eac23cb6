// Package core provides amount and date coercion for ledger rows.
//
// Sheet cells are typed by hand, so parsing is lenient: thousands
// separators and a currency prefix are stripped before conversion.
package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var currencyPrefixes = []string{"NT$", "NTD", "TWD", "$"}

// dateLayouts lists accepted date inputs, most common first.
var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04:05",
	time.RFC3339,
}

func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(strings.ToUpper(s), p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return strings.ReplaceAll(s, ",", "")
}

// ParseAmount converts a stored cell to a decimal. Anything that does not
// parse becomes zero.
//
// Examples:
//
//	ParseAmount("1,200")   -> 1200
//	ParseAmount("NT$ 85")  -> 85
//	ParseAmount("-300.5")  -> -300.5
//	ParseAmount("n/a")     -> 0
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(cleanAmount(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseInputAmount parses a user-entered amount and requires it to be
// strictly positive.
func ParseInputAmount(s string) (decimal.Decimal, error) {
	c := cleanAmount(s)
	if c == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(c)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountPlaces is the number of decimal places an amount may carry.
const AmountPlaces = 2

// FormatAmount renders an amount for storage: integers without decimals,
// otherwise up to two places.
func FormatAmount(d decimal.Decimal) string {
	return d.Round(AmountPlaces).String()
}

// FormatTWD renders an amount for display, e.g. "NT$ 1,234" or "-NT$ 50.5".
func FormatTWD(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	s := d.Round(2).String()
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + "NT$ " + b.String()
	if hasFrac {
		out += "." + frac
	}
	return out
}

// ParseDate tries every accepted layout. ok is false for blank or
// unrecognised input.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return NewDate(y, int(m), d), true
		}
	}
	return Date{}, false
}
