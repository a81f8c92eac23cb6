package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cloudledger/internal/core"
	"cloudledger/internal/log"
	ports "cloudledger/internal/sheets"
)

type option struct {
	Value    string
	Label    string
	Selected bool
}

type summaryView struct {
	Income   string
	Expense  string
	Balance  string
	Count    int
	Negative bool
}

func newSummaryView(s core.Summary) summaryView {
	return summaryView{
		Income:   core.FormatTWD(s.Income),
		Expense:  core.FormatTWD(s.Expense),
		Balance:  core.FormatTWD(s.Balance),
		Count:    s.Count,
		Negative: s.Balance.IsNegative(),
	}
}

type breakdownRow struct {
	Name    string
	Amount  string
	Percent string
}

type historyRow struct {
	Index    int
	ID       string
	Date     string
	Category string
	Type     string
	Amount   string
	Payment  string
	Note     string
	Income   bool
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports not ready when the table cannot be read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()

	checks := map[string]any{
		"rate_limiter": s.limiter.Metrics(),
	}
	status, code := "ready", http.StatusOK
	if err := s.ledger.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	snap := s.ledger.Load(ctx)

	years := core.Years(snap.Transactions)
	if len(years) == 0 {
		years = []int{s.now().Year()}
	}
	payments := core.PaymentMethods()
	data := struct {
		Today      string
		Types      []option
		Categories []string
		Payments   []string
		Years      []int
		Year       int
		Periods    []string
		Period     string
		Degraded   bool
	}{
		Today: s.now().Format(core.DateLayout),
		Types: []option{
			{Value: string(core.Expense), Label: string(core.Expense), Selected: true},
			{Value: string(core.Income), Label: string(core.Income)},
		},
		Categories: core.Categories(core.Expense),
		Payments:   make([]string, 0, len(payments)),
		Years:      years,
		Year:       s.defaultYear(snap.Transactions),
		Periods:    core.Months(snap.Transactions),
		Period:     s.defaultPeriod(snap.Transactions).String(),
		Degraded:   snap.Degraded,
	}
	for _, p := range payments {
		data.Payments = append(data.Payments, string(p))
	}

	s.render(w, r, "index.html", data)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	t, err := core.ParseTxType(r.URL.Query().Get("type"))
	if err != nil {
		BadRequestError("收支類型錯誤").Write(w)
		return
	}
	s.render(w, r, "categories.html", core.Categories(t))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		bodyError(w, err)
		return
	}

	in, err := ParseTransaction(p, s.now())
	if err != nil {
		log.FromContext(ctx).InfoContext(ctx, "Rejected transaction input",
			log.NewFields().WithOperation(log.OpAppend).WithError(err)...)
		UnprocessableEntityError(validationMessage(err)).Write(w)
		return
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	tx, err := s.ledger.Append(sctx, in)
	if err != nil {
		s.mutationError(w, r, err)
		return
	}

	if p.IsJSON() {
		writeJSON(w, http.StatusCreated, newTransactionJSON(tx))
		return
	}
	msg := "已新增 " + tx.Date.String() + " " + tx.Category + " " + core.FormatTWD(tx.SignedAmount)
	NewHTMXResponse().
		TriggerLedgerChanged(tx.ID).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		Message("success", msg).
		Write(w)
}

func (s *Server) handleDeleteAt(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		bodyError(w, err)
		return
	}
	index, err := ParseIndex(p.Get("index"))
	if err != nil {
		UnprocessableEntityError("無效的列號").Write(w)
		return
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	tx, err := s.ledger.DeleteAt(ctx, index, p.Get("revision"))
	if err != nil {
		s.mutationError(w, r, err)
		return
	}
	s.deleted(w, tx)
}

func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	revision := r.URL.Query().Get("revision")
	if v := r.Header.Get("If-Match"); v != "" {
		revision = v
	}

	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	tx, err := s.ledger.Delete(ctx, id, revision)
	if err != nil {
		s.mutationError(w, r, err)
		return
	}
	s.deleted(w, tx)
}

func bodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		WarningResponse(http.StatusRequestEntityTooLarge, "資料過大").Write(w)
		return
	}
	BadRequestError("請求格式錯誤").Write(w)
}

func (s *Server) deleted(w http.ResponseWriter, tx core.Transaction) {
	msg := "已刪除 " + tx.Date.String() + " " + tx.Category + " " + core.FormatTWD(tx.SignedAmount)
	NewHTMXResponse().
		TriggerLedgerChanged(tx.ID).
		TriggerSuccessNotification(msg).
		Message("success", msg).
		Write(w)
}

// mutationError maps ledger errors to inline messages. Store failures are
// already logged by the ledger.
func (s *Server) mutationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrIndexOutOfRange):
		NotFoundError("找不到該列，請重新整理後再試").Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("找不到該筆紀錄").Write(w)
	case errors.Is(err, ports.ErrConflict):
		ConflictError("資料已被其他操作更新，請重新整理後再試").Write(w)
	case isValidation(err):
		UnprocessableEntityError(validationMessage(err)).Write(w)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger mutation failed",
			log.NewFields().WithError(err).With(log.FieldPath, r.URL.Path)...)
		InternalServerError("儲存失敗，請稍後再試").Write(w)
	}
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	txs := s.ledger.Load(ctx).Transactions

	year := ParseYear(r.URL.Query(), s.defaultYear(txs))
	cats := core.ExpenseByCategory(txs, year)
	sum := core.Summarize(txs, core.Year(year))

	data := struct {
		Year    int
		Rows    []breakdownRow
		Summary summaryView
	}{Year: year, Summary: newSummaryView(sum)}
	for _, c := range cats {
		data.Rows = append(data.Rows, breakdownRow{
			Name:    c.Name,
			Amount:  core.FormatTWD(c.Amount),
			Percent: percent(c.Amount, sum.Expense),
		})
	}

	s.render(w, r, "breakdown.html", data)
}

type categoryJSON struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleBreakdownJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	txs := s.ledger.Load(ctx).Transactions

	year := ParseYear(r.URL.Query(), s.defaultYear(txs))
	cats := core.ExpenseByCategory(txs, year)
	out := struct {
		Year       int             `json:"year"`
		Categories []categoryJSON  `json:"categories"`
		Total      decimal.Decimal `json:"total"`
	}{Year: year, Categories: make([]categoryJSON, 0, len(cats))}
	for _, c := range cats {
		out.Categories = append(out.Categories, categoryJSON{Name: c.Name, Amount: c.Amount})
		out.Total = out.Total.Add(c.Amount)
	}
	writeJSON(w, http.StatusOK, out)
}

type trendPointJSON struct {
	Period  string          `json:"period"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
	Count   int             `json:"count"`
}

// handleTrendJSON returns the yearly trend, or the monthly trend of ?year=.
func (s *Server) handleTrendJSON(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	txs := s.ledger.Load(ctx).Transactions

	var points []core.TrendPoint
	granularity := "year"
	if r.URL.Query().Has("year") {
		year, err := strconv.Atoi(r.URL.Query().Get("year"))
		if err != nil || year <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid year"})
			return
		}
		points = core.MonthlyTrend(txs, year)
		granularity = "month"
	} else {
		points = core.YearlyTrend(txs)
	}

	out := struct {
		Granularity string           `json:"granularity"`
		Points      []trendPointJSON `json:"points"`
	}{Granularity: granularity, Points: make([]trendPointJSON, 0, len(points))}
	for _, p := range points {
		out.Points = append(out.Points, trendPointJSON{
			Period:  p.Period,
			Income:  p.Income,
			Expense: p.Expense,
			Balance: p.Balance,
			Count:   p.Count,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r.Context())
	defer cancel()
	snap := s.ledger.Load(ctx)

	sel := s.defaultPeriod(snap.Transactions)
	if v := r.URL.Query().Get("period"); v != "" {
		parsed, err := core.ParseSelection(v)
		if err != nil {
			BadRequestError("期間格式錯誤，請使用 YYYY-MM、YYYY 或 all").Write(w)
			return
		}
		sel = parsed
	}

	data := struct {
		Period   string
		Revision string
		Summary  summaryView
		Rows     []historyRow
	}{
		Period:   sel.String(),
		Revision: snap.Revision,
		Summary:  newSummaryView(core.Summarize(snap.Transactions, sel)),
	}
	for _, it := range core.Filter(snap.Transactions, sel) {
		data.Rows = append(data.Rows, historyRow{
			Index:    it.Index,
			ID:       it.ID,
			Date:     it.Date.String(),
			Category: it.Category,
			Type:     string(it.Type),
			Amount:   core.FormatTWD(it.Amount),
			Payment:  string(it.PaymentMethod),
			Note:     it.Note,
			Income:   it.Type == core.Income,
		})
	}

	s.render(w, r, "history.html", data)
}

// defaultYear is the newest year with data, or the current year.
func (s *Server) defaultYear(txs []core.Transaction) int {
	if years := core.Years(txs); len(years) > 0 {
		return years[0]
	}
	return s.now().Year()
}

// defaultPeriod is the newest month with data, or everything when empty.
func (s *Server) defaultPeriod(txs []core.Transaction) core.Selection {
	if months := core.Months(txs); len(months) > 0 {
		if sel, err := core.ParseSelection(months[0]); err == nil {
			return sel
		}
	}
	return core.All()
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.NewFields().WithOperation(log.OpRender).WithError(err).With("template", name)...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type transactionJSON struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Category      string          `json:"category"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	SignedAmount  decimal.Decimal `json:"signed_amount"`
	PaymentMethod string          `json:"payment_method"`
	Note          string          `json:"note"`
}

func newTransactionJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:            tx.ID,
		Date:          tx.Date.String(),
		Category:      tx.Category,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		SignedAmount:  tx.SignedAmount,
		PaymentMethod: string(tx.PaymentMethod),
		Note:          tx.Note,
	}
}

var validationMessages = []struct {
	err error
	msg string
}{
	{core.ErrInvalidDate, "日期格式錯誤"},
	{core.ErrInvalidAmount, "金額必須大於 0"},
	{core.ErrAmountPrecision, "金額最多到小數點後兩位"},
	{core.ErrInvalidType, "收支類型錯誤"},
	{core.ErrInvalidCategory, "分類項目與收支類型不符"},
	{core.ErrInvalidPayment, "請選擇支出方式"},
	{core.ErrNoteTooLong, "備註最多 200 字"},
}

func isValidation(err error) bool {
	for _, v := range validationMessages {
		if errors.Is(err, v.err) {
			return true
		}
	}
	return false
}

func validationMessage(err error) string {
	for _, v := range validationMessages {
		if errors.Is(err, v.err) {
			return v.msg
		}
	}
	return "輸入資料有誤"
}

// percent renders part/total with one decimal, or "-" when total is zero.
func percent(part, total decimal.Decimal) string {
	if total.IsZero() {
		return "-"
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
