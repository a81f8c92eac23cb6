package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cloudledger/internal/log"
	"cloudledger/internal/metrics"
	"cloudledger/internal/middleware/ratelimit"
	"cloudledger/internal/middleware/security"
	"cloudledger/internal/middleware/trace"
	"cloudledger/internal/services"
	appweb "cloudledger/web"
)

// Server is the ledger web server.
type Server struct {
	http.Server

	ledger    *services.Ledger
	templates *template.Template
	logger    *log.Logger
	metrics   *metrics.Metrics
	limiter   *ratelimit.Limiter
	clients   *security.ClientResolver

	storeTimeout time.Duration
	started      time.Time
	now          func() time.Time

	shutdownOnce sync.Once
}

// Options tunes a Server. Zero values pick defaults.
type Options struct {
	Logger             *log.Logger
	Metrics            *metrics.Metrics
	RateLimitPerMinute int
	StoreTimeout       time.Duration
	TrustedProxies     []string
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, ledger *services.Ledger, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	clients, err := security.NewClientResolver(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ledger:       ledger,
		templates:    t,
		logger:       opts.Logger.WithComponent(log.ComponentHTTP),
		metrics:      opts.Metrics,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		clients:      clients,
		storeTimeout: opts.StoreTimeout,
		started:      time.Now(),
		now:          time.Now,
	}
	s.Addr = addr
	s.Handler = s.routes()
	s.ReadHeaderTimeout = 10 * time.Second
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(trace.Middleware(s.clients.ClientIP))
	r.Use(s.metrics.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		r.With(security.StaticAssets(3600)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/", s.handleIndex)
	r.Get("/ui/categories", s.handleCategories)
	r.Get("/ui/breakdown", s.handleBreakdown)
	r.Get("/ui/history", s.handleHistory)
	r.Get("/api/breakdown", s.handleBreakdownJSON)
	r.Get("/api/trend", s.handleTrendJSON)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.clients.ClientIP, s.handleRateLimited))
		r.Post("/transactions", s.handleCreate)
		r.Post("/transactions/delete", s.handleDeleteAt)
		r.Delete("/transactions/{id}", s.handleDeleteByID)
	})

	return r
}

// storeContext bounds one store round trip.
func (s *Server) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clients.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	WarningResponse(http.StatusTooManyRequests, "操作太頻繁，請稍後再試").Write(w)
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
