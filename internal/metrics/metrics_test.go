package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New(nil)
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/transactions/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/transactions/def", nil))

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodDelete, "/transactions/{id}", "404"))
	assert.Equal(t, 2.0, got)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New(nil)
	m.TransactionsAppended.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "cloudledger_transactions_appended_total 1"))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
