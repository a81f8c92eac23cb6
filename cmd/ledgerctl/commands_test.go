package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudledger/internal/core"
	"cloudledger/internal/log"
	"cloudledger/internal/services"
	ports "cloudledger/internal/sheets"
	"cloudledger/internal/sheets/memory"
)

func seeded() *memory.Store {
	return memory.New(ports.Table{
		Header: ports.Header,
		Rows: [][]string{
			{"2024-01-05", "飲食", "支出", "100", "-100", "現金", "", "a"},
			{"2024-01-10", "薪資", "收入", "5000", "5000", "", "", "b"},
		},
	})
}

func run(t *testing.T, store ports.Store, args ...string) (string, error) {
	t.Helper()
	closed := false
	a := &app{
		now: func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) },
		open: func(context.Context, string) (*services.Ledger, func() error, error) {
			l := services.NewLedger(store, services.WithLogger(log.New(log.Config{Output: io.Discard})))
			release := func() error {
				closed = true
				return nil
			}
			return l, release, nil
		},
	}
	var out bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if err == nil {
		assert.True(t, closed, "backend not released")
	}
	return out.String(), err
}

func TestList_PrintsNewestFirstWithIndex(t *testing.T) {
	out, err := run(t, seeded(), "list")
	require.NoError(t, err)

	lines := bytes.Split([]byte(out), []byte("\n"))
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, string(lines[1]), "2024-01-10")
	assert.Contains(t, string(lines[2]), "2024-01-05")
	assert.Contains(t, out, "revision 0")
}

func TestList_RejectsBadPeriod(t *testing.T) {
	_, err := run(t, seeded(), "list", "--period", "2024-13")
	assert.ErrorIs(t, err, core.ErrInvalidSelection)
}

func TestSummary_Month(t *testing.T) {
	out, err := run(t, seeded(), "summary", "--period", "2024-01")
	require.NoError(t, err)
	assert.Contains(t, out, "NT$ 5,000")
	assert.Contains(t, out, "NT$ 100")
	assert.Contains(t, out, "NT$ 4,900")
}

func TestAdd_DefaultsDateToToday(t *testing.T) {
	store := seeded()
	out, err := run(t, store, "add", "--type", "支出", "--category", "交通", "--amount", "35", "--payment", "現金")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-02-01")

	tbl, err := store.ReadTable(context.Background())
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "2024-02-01", tbl.Rows[2][0])
	assert.Equal(t, "-35", tbl.Rows[2][4])
}

func TestAdd_InvalidAmountDoesNotOpenBackend(t *testing.T) {
	a := &app{
		now: time.Now,
		open: func(context.Context, string) (*services.Ledger, func() error, error) {
			t.Fatal("backend opened for invalid input")
			return nil, nil, nil
		},
	}
	cmd := newRootCmd(a)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"add", "--type", "支出", "--category", "飲食", "--amount=-5"})
	assert.ErrorIs(t, cmd.Execute(), core.ErrInvalidAmount)
}

func TestDelete_ByIndex(t *testing.T) {
	store := seeded()
	out, err := run(t, store, "delete", "--index", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-10")

	tbl, err := store.ReadTable(context.Background())
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "a", tbl.Rows[0][7])
}

func TestDelete_Errors(t *testing.T) {
	_, err := run(t, seeded(), "delete", "--index", "2")
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)

	_, err = run(t, seeded(), "delete", "--id", "zzz")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = run(t, seeded(), "delete", "--id", "a", "--revision", "7")
	assert.ErrorIs(t, err, ports.ErrConflict)

	_, err = run(t, seeded(), "delete")
	assert.Error(t, err)
}

func TestBreakdown_DefaultsToNewestYear(t *testing.T) {
	out, err := run(t, seeded(), "breakdown")
	require.NoError(t, err)
	assert.Contains(t, out, "飲食")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "2024")

	out, err = run(t, seeded(), "breakdown", "--year", "2023")
	require.NoError(t, err)
	assert.Contains(t, out, "no expenses in 2023")
}

func TestTrend_MonthlyHasTwelvePoints(t *testing.T) {
	out, err := run(t, seeded(), "trend", "--year", "2024")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01")
	assert.Contains(t, out, "2024-12")
}

type brokenStore struct{ ports.Store }

func (brokenStore) ReadTable(context.Context) (ports.Table, error) {
	return ports.Table{}, errors.New("connection refused")
}

func TestList_ReadFailureIsAnError(t *testing.T) {
	_, err := run(t, brokenStore{}, "list")
	assert.ErrorContains(t, err, "connection refused")
}
