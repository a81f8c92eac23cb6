package log

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Middleware puts a request-scoped logger carrying the chi request id into
// the request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger
			if id := middleware.GetReqID(r.Context()); id != "" {
				l = logger.With(FieldRequestID, id)
			}
			next.ServeHTTP(w, r.WithContext(IntoContext(r.Context(), l)))
		})
	}
}
