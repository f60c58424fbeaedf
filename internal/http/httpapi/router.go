package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mealgen/internal/http/handlers"
	"mealgen/internal/middleware"
)

// Options carries router wiring that does not belong to handlers.App.
type Options struct {
	Logger             zerolog.Logger
	CORSAllowedOrigins []string
	// RateLimitPerMin limits POST /generate per client; zero disables it.
	RateLimitPerMin int
	// Prometheus serves /metrics/prometheus when set.
	Prometheus stdhttp.Handler
	// Static serves stored media under /static when set.
	Static stdhttp.Handler
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(opts.Logger), middleware.CORS(opts.CORSAllowedOrigins))

	// Health
	r.Get("/v1/healthz", app.Health)

	r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/generate", app.Generate)
	r.Get("/progress/{batchId}", app.Progress)
	r.Get("/progress-stream/{batchId}", app.ProgressStream)
	r.Post("/cancel/{batchId}", app.Cancel)
	r.Get("/v1/batches/{batchId}/items", app.BatchItems)
	r.Get("/v1/batches/{batchId}/export", app.ExportBatch)

	r.Get("/metrics", app.AgentMetrics)
	if opts.Prometheus != nil {
		r.Method(stdhttp.MethodGet, "/metrics/prometheus", opts.Prometheus)
	}
	if opts.Static != nil {
		r.Handle("/static/*", stdhttp.StripPrefix("/static/", opts.Static))
	}

	return r
}
