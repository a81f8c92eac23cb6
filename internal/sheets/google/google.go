package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	ports "cloudledger/internal/sheets"

	"github.com/cespare/xxhash/v2"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	tableKey         = "table"
	valueInputOption = "RAW"
)

type Options struct {
	SpreadsheetID string
	SheetName     string
	// CacheTTL bounds how long a read is reused. Zero disables caching.
	CacheTTL time.Duration
}

// Client stores the ledger in one worksheet. Every write replaces the
// whole sheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// writeMu serializes the read-compare-write cycle.
	writeMu sync.Mutex
	group   singleflight.Group
	cache   *gocache.Cache
	ttl     time.Duration
}

var _ ports.Store = (*Client)(nil)

// New creates a client. Extra options are passed to the Sheets service and
// usually carry credentials.
func New(ctx context.Context, o Options, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(o.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(o.SheetName) == "" {
		o.SheetName = "記帳"
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	c := &Client{
		svc:           svc,
		spreadsheetID: o.SpreadsheetID,
		sheetName:     o.SheetName,
		ttl:           o.CacheTTL,
	}
	if o.CacheTTL > 0 {
		c.cache = gocache.New(o.CacheTTL, 2*o.CacheTTL)
	}
	slog.InfoContext(ctx, "Google Sheets client ready", "sheet", o.SheetName, "cache_ttl", o.CacheTTL)
	return c, nil
}

// ReadTable returns the whole worksheet. Concurrent callers share one API call.
func (c *Client) ReadTable(ctx context.Context) (ports.Table, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(tableKey); ok {
			return cloneTable(v.(ports.Table)), nil
		}
	}
	v, err, _ := c.group.Do(tableKey, func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return ports.Table{}, err
	}
	return cloneTable(v.(ports.Table)), nil
}

// WriteTable clears the worksheet and writes t from A1.
func (c *Client) WriteTable(ctx context.Context, t ports.Table, expected string) (string, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if expected != "" {
		current, err := c.fetch(ctx)
		if err != nil {
			return "", fmt.Errorf("read before write: %w", err)
		}
		if current.Revision != expected {
			slog.WarnContext(ctx, "Sheet changed since read", "expected", expected, "actual", current.Revision)
			return "", ports.ErrConflict
		}
	}

	c.invalidate()
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, c.a1("A:Z"), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", c.sheetName, err)
	}

	values := make([][]any, 0, len(t.Rows)+1)
	values = append(values, toCells(t.Header))
	for _, r := range t.Rows {
		values = append(values, toCells(r))
	}
	// RAW stores every cell as typed. Notes starting with "=" or looking
	// like dates or numbers would otherwise be reinterpreted on each rewrite.
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.a1("A1"), vr).
		ValueInputOption(valueInputOption).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("update %s: %w", c.sheetName, err)
	}

	// The sheet may still apply column formats, so the revision comes from
	// a fresh read.
	written, err := c.fetch(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Re-read after write failed", "error", err)
		return "", nil
	}
	return written.Revision, nil
}

func (c *Client) invalidate() {
	if c.cache != nil {
		c.cache.Delete(tableKey)
	}
}

func (c *Client) fetch(ctx context.Context) (ports.Table, error) {
	if c.svc == nil {
		return ports.Table{}, errors.New("sheets service not initialized")
	}
	rng := c.a1("A:Z")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return ports.Table{}, fmt.Errorf("read %s: %w", rng, err)
	}
	t := parseValues(resp.Values)
	if c.cache != nil {
		c.cache.Set(tableKey, t, c.ttl)
	}
	return t, nil
}

// parseValues turns the API matrix into a table. Trailing empty rows are
// skipped; empty rows in between are kept so positions match the sheet.
func parseValues(values [][]any) ports.Table {
	if len(values) == 0 {
		t := ports.EmptyTable()
		t.Revision = revision(ports.Table{})
		return t
	}
	t := ports.Table{Header: toStrings(values[0])}
	last := len(values) - 1
	for last > 0 && isBlank(toStrings(values[last])) {
		last--
	}
	for i := 1; i <= last; i++ {
		t.Rows = append(t.Rows, toStrings(values[i]))
	}
	t.Revision = revision(t)
	return t
}

func revision(t ports.Table) string {
	h := xxhash.New()
	write := func(row []string) {
		for _, v := range row {
			_, _ = h.WriteString(v)
			_, _ = h.WriteString("\x1f")
		}
		_, _ = h.WriteString("\x1e")
	}
	write(t.Header)
	for _, r := range t.Rows {
		write(r)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (c *Client) a1(cells string) string {
	return "'" + strings.ReplaceAll(c.sheetName, "'", "''") + "'!" + cells
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toCells(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

func cloneTable(t ports.Table) ports.Table {
	out := ports.Table{Header: append([]string(nil), t.Header...), Revision: t.Revision}
	out.Rows = make([][]string, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
