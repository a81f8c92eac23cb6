package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

type (
	// Scope is the granularity of a Selection.
	Scope int

	// Selection picks the rows an aggregate is computed over.
	Selection struct {
		Scope Scope
		Year  int
		Month int // 1-12, only for ScopeMonth
	}

	Summary struct {
		Income  decimal.Decimal
		Expense decimal.Decimal
		Balance decimal.Decimal
		Count   int
	}

	// CategoryAmount is one slice of the breakdown pie.
	CategoryAmount struct {
		Name   string
		Amount decimal.Decimal
	}

	// TrendPoint is the summary of one period in a trend series.
	TrendPoint struct {
		Period string
		Summary
	}

	// Indexed pairs a row with its position in the full loaded list.
	Indexed struct {
		Index int
		Transaction
	}
)

const (
	ScopeAll Scope = iota
	ScopeYear
	ScopeMonth
)

var ErrInvalidSelection = errors.New("invalid period selection")

func All() Selection { return Selection{Scope: ScopeAll} }
func Year(y int) Selection { return Selection{Scope: ScopeYear, Year: y} }
func Month(y, m int) Selection { return Selection{Scope: ScopeMonth, Year: y, Month: m} }

// ParseSelection accepts "all" (or empty), "YYYY" and "YYYY-MM".
func ParseSelection(s string) (Selection, error) {
	switch {
	case s == "" || s == "all":
		return All(), nil
	case len(s) == 4:
		y, err := strconv.Atoi(s)
		if err != nil || y < 1 {
			return Selection{}, ErrInvalidSelection
		}
		return Year(y), nil
	case len(s) == 7 && s[4] == '-':
		y, err1 := strconv.Atoi(s[:4])
		m, err2 := strconv.Atoi(s[5:])
		if err1 != nil || err2 != nil || y < 1 || m < 1 || m > 12 {
			return Selection{}, ErrInvalidSelection
		}
		return Month(y, m), nil
	}
	return Selection{}, ErrInvalidSelection
}

func (s Selection) String() string {
	switch s.Scope {
	case ScopeYear:
		return fmt.Sprintf("%04d", s.Year)
	case ScopeMonth:
		return fmt.Sprintf("%04d-%02d", s.Year, s.Month)
	}
	return "all"
}

func (s Selection) Contains(d Date) bool {
	switch s.Scope {
	case ScopeYear:
		return d.Year() == s.Year
	case ScopeMonth:
		return d.Year() == s.Year && d.Month() == s.Month
	}
	return true
}

func (s *Summary) add(t Transaction) {
	switch t.Type {
	case Income:
		s.Income = s.Income.Add(t.Amount)
	case Expense:
		s.Expense = s.Expense.Add(t.Amount)
	}
	s.Balance = s.Income.Sub(s.Expense)
	s.Count++
}

// Summarize folds income, expense and balance over the selected rows.
func Summarize(txs []Transaction, sel Selection) Summary {
	var s Summary
	for _, t := range txs {
		if sel.Contains(t.Date) {
			s.add(t)
		}
	}
	return s
}

// Filter returns the selected rows tagged with their position in txs.
func Filter(txs []Transaction, sel Selection) []Indexed {
	out := make([]Indexed, 0, len(txs))
	for i, t := range txs {
		if sel.Contains(t.Date) {
			out = append(out, Indexed{Index: i, Transaction: t})
		}
	}
	return out
}

// ExpenseByCategory groups the year's expenses by category in first-seen order.
func ExpenseByCategory(txs []Transaction, year int) []CategoryAmount {
	pos := map[string]int{}
	var out []CategoryAmount
	for _, t := range txs {
		if t.Type != Expense || t.Date.Year() != year {
			continue
		}
		i, ok := pos[t.Category]
		if !ok {
			i = len(out)
			pos[t.Category] = i
			out = append(out, CategoryAmount{Name: t.Category})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}
	return out
}

// YearlyTrend returns one point per year present, ascending.
func YearlyTrend(txs []Transaction) []TrendPoint {
	byYear := map[int]*Summary{}
	for _, t := range txs {
		s, ok := byYear[t.Date.Year()]
		if !ok {
			s = &Summary{}
			byYear[t.Date.Year()] = s
		}
		s.add(t)
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	out := make([]TrendPoint, 0, len(years))
	for _, y := range years {
		out = append(out, TrendPoint{Period: fmt.Sprintf("%04d", y), Summary: *byYear[y]})
	}
	return out
}

// MonthlyTrend returns twelve points for the year, empty months included.
func MonthlyTrend(txs []Transaction, year int) []TrendPoint {
	out := make([]TrendPoint, 12)
	for m := range out {
		out[m].Period = fmt.Sprintf("%04d-%02d", year, m+1)
	}
	for _, t := range txs {
		if t.Date.Year() == year {
			out[t.Date.Month()-1].add(t)
		}
	}
	return out
}

// Months lists the distinct YYYY-MM periods, newest first.
func Months(txs []Transaction) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range txs {
		k := t.Date.MonthKey()
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// Years lists the distinct years, newest first.
func Years(txs []Transaction) []int {
	seen := map[int]bool{}
	var out []int
	for _, t := range txs {
		if y := t.Date.Year(); !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// SortByDateDesc orders newest first, keeping equal dates in input order.
func SortByDateDesc(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date.Time)
	})
}
