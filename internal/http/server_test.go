package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cloudledger/internal/log"
	"cloudledger/internal/services"
	ports "cloudledger/internal/sheets"
	"cloudledger/internal/sheets/memory"
)

func twoRowStore() *memory.Store {
	return memory.New(ports.Table{
		Header: ports.Header,
		Rows: [][]string{
			{"2024-01-05", "飲食", "支出", "100", "-100", "現金", "", "a"},
			{"2024-01-10", "薪資", "收入", "5000", "5000", "", "", "b"},
		},
	})
}

// cell reads a column of a row written with the canonical header.
func cell(row []string, name string) string {
	return ports.CellAt(row, ports.ColumnIndex(ports.Header, name))
}

type failingStore struct{}

func (failingStore) ReadTable(context.Context) (ports.Table, error) {
	return ports.Table{}, errors.New("sheet unavailable")
}

func (failingStore) WriteTable(context.Context, ports.Table, string) (string, error) {
	return "", errors.New("sheet unavailable")
}

func newTestServer(t *testing.T, store ports.Store) *Server {
	t.Helper()
	logger := log.New(log.Config{Output: io.Discard})
	n := 0
	ledger := services.NewLedger(store,
		services.WithLogger(logger),
		services.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}))
	srv, err := NewServer(":0", ledger, Options{Logger: logger, RateLimitPerMinute: 600})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv.now = func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, target string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, twoRowStore())

	rr := do(srv, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"雲端記帳本", "新增", "分析", "歷史", `value="2024-02-01"`, "飲食"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := do(srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	srv := newTestServer(t, failingStore{})

	rr := do(srv, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	// pages still render on an empty ledger
	rr = do(srv, http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "無法讀取資料") {
		t.Error("expected degraded warning on index")
	}
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t, twoRowStore())

	rr := do(srv, http.MethodGet, "/ui/categories?type=收入", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `<option value="薪資">`) {
		t.Errorf("income categories missing: %s", rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "飲食") {
		t.Error("expense category listed for income")
	}

	if rr := do(srv, http.MethodGet, "/ui/categories?type=gift", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateTransaction(t *testing.T) {
	store := twoRowStore()
	srv := newTestServer(t, store)

	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{"zero amount", url.Values{"type": {"支出"}, "category": {"飲食"}, "amount": {"0"}, "payment": {"現金"}}, http.StatusUnprocessableEntity},
		{"negative amount", url.Values{"type": {"支出"}, "category": {"飲食"}, "amount": {"-5"}, "payment": {"現金"}}, http.StatusUnprocessableEntity},
		{"bad category", url.Values{"type": {"收入"}, "category": {"飲食"}, "amount": {"10"}}, http.StatusUnprocessableEntity},
		{"bad date", url.Values{"date": {"soon"}, "type": {"支出"}, "category": {"飲食"}, "amount": {"10"}, "payment": {"現金"}}, http.StatusUnprocessableEntity},
		{"three decimals", url.Values{"type": {"支出"}, "category": {"飲食"}, "amount": {"100.555"}, "payment": {"現金"}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(srv, http.MethodPost, "/transactions", tt.form)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}

	tbl, _ := store.ReadTable(context.Background())
	if len(tbl.Rows) != 2 {
		t.Fatalf("validation failures must not write, rows=%d", len(tbl.Rows))
	}

	rr := do(srv, http.MethodPost, "/transactions", url.Values{
		"date": {"2024-01-20"}, "type": {"支出"}, "category": {"交通"},
		"amount": {"250"}, "payment": {"信用卡"}, "note": {"高鐵"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "success") {
		t.Errorf("expected success in body: %s", rr.Body.String())
	}
	trigger := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trigger, EventLedgerChanged) || !strings.Contains(trigger, EventFormReset) {
		t.Errorf("unexpected HX-Trigger: %s", trigger)
	}

	tbl, _ = store.ReadTable(context.Background())
	if len(tbl.Rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(tbl.Rows))
	}
	last := tbl.Rows[2]
	if cell(last, ports.ColSigned) != "-250" || cell(last, ports.ColID) != "id-1" {
		t.Errorf("unexpected appended row %v", last)
	}
}

func TestCreateRejectsOversizedBody(t *testing.T) {
	store := twoRowStore()
	srv := newTestServer(t, store)

	rr := do(srv, http.MethodPost, "/transactions", url.Values{
		"type": {"支出"}, "category": {"飲食"}, "amount": {"10"}, "payment": {"現金"},
		"note": {strings.Repeat("x", maxBodyBytes)},
	})
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	tbl, _ := store.ReadTable(context.Background())
	if len(tbl.Rows) != 2 {
		t.Fatalf("oversized body must not write, rows=%d", len(tbl.Rows))
	}
}

func TestCreateTransactionJSON(t *testing.T) {
	srv := newTestServer(t, twoRowStore())

	req := httptest.NewRequest(http.MethodPost, "/transactions",
		strings.NewReader(`{"date":"2024-01-21","type":"income","category":"獎金","amount":1200}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var got transactionJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != "收入" || got.SignedAmount.String() != "1200" || got.PaymentMethod != "" {
		t.Errorf("unexpected transaction %+v", got)
	}
}

func TestDeleteAt(t *testing.T) {
	store := twoRowStore()
	srv := newTestServer(t, store)

	if rr := do(srv, http.MethodPost, "/transactions/delete", url.Values{"index": {"5"}}); rr.Code != http.StatusNotFound {
		t.Fatalf("out of range: expected 404, got %d", rr.Code)
	}
	if rr := do(srv, http.MethodPost, "/transactions/delete", url.Values{"index": {"x"}}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad index: expected 422, got %d", rr.Code)
	}
	if rr := do(srv, http.MethodPost, "/transactions/delete", url.Values{"index": {"0"}, "revision": {"stale"}}); rr.Code != http.StatusConflict {
		t.Fatalf("stale revision: expected 409, got %d", rr.Code)
	}

	// index 0 is the newest row, 2024-01-10
	rr := do(srv, http.MethodPost, "/transactions/delete", url.Values{"index": {"0"}, "revision": {"0"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	tbl, _ := store.ReadTable(context.Background())
	if len(tbl.Rows) != 1 || cell(tbl.Rows[0], ports.ColDate) != "2024-01-05" {
		t.Fatalf("unexpected rows after delete: %v", tbl.Rows)
	}
}

func TestDeleteByID(t *testing.T) {
	store := twoRowStore()
	srv := newTestServer(t, store)

	if rr := do(srv, http.MethodDelete, "/transactions/nope", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	rr := do(srv, http.MethodDelete, "/transactions/a", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	tbl, _ := store.ReadTable(context.Background())
	if len(tbl.Rows) != 1 || cell(tbl.Rows[0], ports.ColID) != "b" {
		t.Fatalf("unexpected rows after delete: %v", tbl.Rows)
	}
}

func TestWriteFailure(t *testing.T) {
	srv := newTestServer(t, failingStore{})
	rr := do(srv, http.MethodPost, "/transactions", url.Values{
		"type": {"支出"}, "category": {"飲食"}, "amount": {"10"}, "payment": {"現金"},
	})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestBreakdownAndHistory(t *testing.T) {
	srv := newTestServer(t, twoRowStore())

	rr := do(srv, http.MethodGet, "/ui/breakdown?year=2024", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("breakdown status=%d", rr.Code)
	}
	for _, want := range []string{"飲食", "NT$ 100", "100.0%", "NT$ 5,000", "NT$ 4,900"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("breakdown missing %q", want)
		}
	}

	rr = do(srv, http.MethodGet, "/ui/history?period=2024-01", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"NT$ 4,900", `name="index" value="0"`, `name="index" value="1"`, "2024-01-10"} {
		if !strings.Contains(body, want) {
			t.Errorf("history missing %q", want)
		}
	}

	rr = do(srv, http.MethodGet, "/ui/history?period=2023-02", nil)
	if !strings.Contains(rr.Body.String(), "此期間沒有紀錄") {
		t.Error("expected empty history placeholder")
	}

	if rr := do(srv, http.MethodGet, "/ui/history?period=Jan", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestJSONEndpoints(t *testing.T) {
	srv := newTestServer(t, twoRowStore())

	rr := do(srv, http.MethodGet, "/api/breakdown?year=2024", nil)
	var bd struct {
		Year       int            `json:"year"`
		Categories []categoryJSON `json:"categories"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &bd); err != nil {
		t.Fatalf("decode breakdown: %v", err)
	}
	if bd.Year != 2024 || len(bd.Categories) != 1 || bd.Categories[0].Name != "飲食" {
		t.Errorf("unexpected breakdown %+v", bd)
	}

	rr = do(srv, http.MethodGet, "/api/trend?year=2024", nil)
	var tr struct {
		Granularity string           `json:"granularity"`
		Points      []trendPointJSON `json:"points"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode trend: %v", err)
	}
	if tr.Granularity != "month" || len(tr.Points) != 12 || tr.Points[0].Balance.String() != "4900" {
		t.Errorf("unexpected trend %+v", tr)
	}

	rr = do(srv, http.MethodGet, "/api/trend", nil)
	if err := json.Unmarshal(rr.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode trend: %v", err)
	}
	if tr.Granularity != "year" || len(tr.Points) != 1 || tr.Points[0].Period != "2024" {
		t.Errorf("unexpected yearly trend %+v", tr)
	}

	if rr := do(srv, http.MethodGet, "/api/trend?year=abc", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRateLimitOnMutations(t *testing.T) {
	logger := log.New(log.Config{Output: io.Discard})
	ledger := services.NewLedger(twoRowStore(), services.WithLogger(logger))
	srv, err := NewServer(":0", ledger, Options{Logger: logger, RateLimitPerMinute: 6})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	form := url.Values{"index": {"99"}}
	if rr := do(srv, http.MethodPost, "/transactions/delete", form); rr.Code != http.StatusNotFound {
		t.Fatalf("first request: expected 404, got %d", rr.Code)
	}
	if rr := do(srv, http.MethodPost, "/transactions/delete", form); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}
	// reads are not limited
	if rr := do(srv, http.MethodGet, "/ui/history", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr := do(srv, http.MethodGet, "/readyz", nil)
	var ready struct {
		Checks struct {
			RateLimiter struct {
				Allowed       int64 `json:"allowed"`
				Rejected      int64 `json:"rejected"`
				ActiveClients int   `json:"active_clients"`
			} `json:"rate_limiter"`
		} `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &ready); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if got := ready.Checks.RateLimiter; got.Allowed != 1 || got.Rejected != 1 || got.ActiveClients != 1 {
		t.Errorf("rate limiter stats = %+v, want 1 allowed, 1 rejected, 1 client", got)
	}
}
