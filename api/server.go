/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies (used by rate limiting)
  3. Logger:     Structured request logging (zap)
  4. Recoverer:  Panic recovery (500 instead of crash), logged
  5. Metrics:    Prometheus request count and latency
  6. CORS:       Cross-origin requests, origins from config
  7. RateLimit:  Per-IP request budget on /api (httprate)

ROUTE GROUPS:
  /healthz              Liveness and store check
  /metrics              Prometheus scrape endpoint
  /api/sponsors/*       Sponsor management, rule recommendations
  /api/deals/*          Deals, metrics, payouts, calculations, analytics
  /api/settlements      Settlement run history
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - metrics.go: Prometheus collectors
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/warp/sponsorship-engine/config"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(recoverer(h.Logger))
	r.Use(h.Metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(httprate.Limit(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Window,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
				}),
			))
		}

		// Sponsor routes
		r.Route("/sponsors", func(r chi.Router) {
			r.Get("/", h.ListSponsors)
			r.Post("/", h.CreateSponsor)
			r.Get("/{id}", h.GetSponsor)
			r.Get("/{id}/recommended-rules", h.RecommendedRules)
		})

		// Deal routes
		r.Route("/deals", func(r chi.Router) {
			r.Get("/", h.ListDeals)
			r.Post("/", h.CreateDeal)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetDeal)
				r.Post("/status", h.UpdateDealStatus)
				r.Post("/settle", h.Settle)

				r.Get("/metrics", h.ListMetrics)
				r.Post("/metrics", h.RecordMetrics)
				r.Get("/payouts", h.ListPayouts)
				r.Post("/payouts", h.CreatePayout)
				r.Get("/calculations", h.ListCalculations)
				r.Post("/calculations", h.Calculate)

				r.Get("/summary", h.GetSummary)
				r.Get("/targeting", h.GetTargeting)
			})
		})

		r.Get("/settlements", h.ListSettlementRuns)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// recoverer turns a panic into a 500 and logs it with the stack.
func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.Stack("stack"))
					writeError(w, http.StatusInternalServerError, "internal error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
