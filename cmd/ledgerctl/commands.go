package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cloudledger/internal/core"
	"cloudledger/internal/services"
)

// openFunc returns a ledger and a function releasing its backend.
type openFunc func(ctx context.Context, logLevel string) (*services.Ledger, func() error, error)

type app struct {
	open openFunc
	now  func() time.Time

	timeout  time.Duration
	logLevel string
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Ledger command line",
		Long:  "Add, list and delete ledger entries and print summaries from the configured backend.",

		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "Deadline for backend calls")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level, defaults to LOG_LEVEL")

	rootCmd.AddCommand(
		a.addCmd(),
		a.listCmd(),
		a.summaryCmd(),
		a.breakdownCmd(),
		a.trendCmd(),
		a.deleteCmd(),
	)
	return rootCmd
}

// withLedger opens the backend for the duration of fn.
func (a *app) withLedger(cmd *cobra.Command, fn func(ctx context.Context, l *services.Ledger) error) (err error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()

	l, closeFn, err := a.open(ctx, a.logLevel)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		if closeFn != nil {
			err = errors.Join(err, closeFn())
		}
	}()
	return fn(ctx, l)
}

// load returns the snapshot, reporting a failed read as an error. Load's
// empty fallback is right for the web page, not for a script.
func load(ctx context.Context, l *services.Ledger) (services.Snapshot, error) {
	if err := l.Ping(ctx); err != nil {
		return services.Snapshot{}, fmt.Errorf("read ledger: %w", err)
	}
	snap := l.Load(ctx)
	if snap.Degraded {
		return services.Snapshot{}, errors.New("read ledger: backend unavailable")
	}
	return snap, nil
}

func (a *app) addCmd() *cobra.Command {
	var in core.Input
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append an entry",
		Example: "  ledgerctl add --type 支出 --category 飲食 --amount 120 --payment 現金\n" +
			"  ledgerctl add --date 2024-01-10 --type 收入 --category 薪資 --amount 50000",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := in.Parse(a.now())
			if err != nil {
				return err
			}
			return a.withLedger(cmd, func(ctx context.Context, l *services.Ledger) error {
				tx, err := l.Append(ctx, n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s %s %s %s %s\n",
					tx.ID, tx.Date, tx.Type, tx.Category, core.FormatTWD(tx.Amount))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Date, "date", "", "Date as YYYY-MM-DD, defaults to today")
	f.StringVar(&in.Type, "type", "", "支出 or 收入")
	f.StringVar(&in.Category, "category", "", "Category for the type")
	f.StringVar(&in.Amount, "amount", "", "Positive amount")
	f.StringVar(&in.Payment, "payment", "", "Payment method for expenses")
	f.StringVar(&in.Note, "note", "", "Optional note")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries newest first with their delete index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := core.ParseSelection(period)
			if err != nil {
				return err
			}
			return a.withLedger(cmd, func(ctx context.Context, l *services.Ledger) error {
				snap, err := load(ctx, l)
				if err != nil {
					return err
				}
				writeList(cmd.OutOrStdout(), core.Filter(snap.Transactions, sel))
				fmt.Fprintf(cmd.OutOrStdout(), "revision %s\n", snap.Revision)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "all", "all, YYYY or YYYY-MM")
	return cmd
}

func writeList(out io.Writer, rows []core.Indexed) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDATE\tTYPE\tCATEGORY\tAMOUNT\tPAYMENT\tNOTE\tID")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Index, r.Date, r.Type, r.Category, core.FormatTWD(r.Amount), r.PaymentMethod, r.Note, r.ID)
	}
	_ = w.Flush()
}

func (a *app) summaryCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print income, expense and balance for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := core.ParseSelection(period)
			if err != nil {
				return err
			}
			return a.withLedger(cmd, func(ctx context.Context, l *services.Ledger) error {
				snap, err := load(ctx, l)
				if err != nil {
					return err
				}
				s := core.Summarize(snap.Transactions, sel)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "period\t%s\n", sel)
				fmt.Fprintf(w, "income\t%s\n", core.FormatTWD(s.Income))
				fmt.Fprintf(w, "expense\t%s\n", core.FormatTWD(s.Expense))
				fmt.Fprintf(w, "balance\t%s\n", core.FormatTWD(s.Balance))
				fmt.Fprintf(w, "entries\t%d\n", s.Count)
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "all", "all, YYYY or YYYY-MM")
	return cmd
}

func (a *app) breakdownCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Print a year's expenses by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLedger(cmd, func(ctx context.Context, l *services.Ledger) error {
				snap, err := load(ctx, l)
				if err != nil {
					return err
				}
				y := year
				if y == 0 {
					y = newestYear(snap.Transactions, a.now())
				}
				rows := core.ExpenseByCategory(snap.Transactions, y)
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintf(out, "no expenses in %d\n", y)
					return nil
				}
				total := core.Summarize(snap.Transactions, core.Year(y)).Expense
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
				fmt.Fprint(w, "CATEGORY\tAMOUNT\tSHARE\t\n")
				for _, r := range rows {
					share := "0.0%"
					if total.IsPositive() {
						share = r.Amount.Div(total).Shift(2).StringFixed(1) + "%"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.Name, core.FormatTWD(r.Amount), share)
				}
				fmt.Fprintf(w, "%d\t%s\t\t\n", y, core.FormatTWD(total))
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year, defaults to the newest year with entries")
	return cmd
}

func (a *app) trendCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Print yearly totals, or monthly totals with --year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withLedger(cmd, func(ctx context.Context, l *services.Ledger) error {
				snap, err := load(ctx, l)
				if err != nil {
					return err
				}
				points := core.YearlyTrend(snap.Transactions)
				if year != 0 {
					points = core.MonthlyTrend(snap.Transactions, year)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PERIOD\tINCOME\tEXPENSE\tBALANCE\tCOUNT")
				for _, p := range points {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.Period,
						core.FormatTWD(p.Income), core.FormatTWD(p.Expense), core.FormatTWD(p.Balance), p.Count)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year for a monthly series")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var (
		index    int
		id       string
		revision string
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete an entry by list index or id",
		Example: "  ledgerctl delete --index 0\n" +
			"  ledgerctl delete --id 01HQ3K6J8Z --revision 12",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			byIndex := cmd.Flags().Changed("index")
			if byIndex && index < 0 {
				return fmt.Errorf("%w: %d", core.ErrIndexOutOfRange, index)
			}
			return a.withLedger(cmd, func(ctx context.Context, l *services.Ledger) error {
				var (
					tx  core.Transaction
					err error
				)
				if byIndex {
					tx, err = l.DeleteAt(ctx, index, revision)
				} else {
					tx, err = l.Delete(ctx, id, revision)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s %s %s\n",
					tx.Date, tx.Category, core.FormatTWD(tx.Amount), strconv.Quote(tx.Note))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&index, "index", 0, "Zero-based position in the full list, as printed by list")
	f.StringVar(&id, "id", "", "Entry id")
	f.StringVar(&revision, "revision", "", "Fail unless the table is still at this revision")
	cmd.MarkFlagsMutuallyExclusive("index", "id")
	cmd.MarkFlagsOneRequired("index", "id")
	return cmd
}

func newestYear(txs []core.Transaction, now time.Time) int {
	if ys := core.Years(txs); len(ys) > 0 {
		return ys[0]
	}
	return now.Year()
}
