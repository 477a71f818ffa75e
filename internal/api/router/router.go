package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/trust-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/trust-engine/internal/http/middleware"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Trust              *handlers.TrustHandler
	Health             *handlers.HealthHandler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	RateLimiter        *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Check)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.RateLimiter != nil {
			v1.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		v1.Route("/actors/{actorID}", func(actor chi.Router) {
			actor.Post("/agreement", cfg.Trust.SignAgreement)
			actor.Get("/summary", cfg.Trust.Summary)
			actor.Post("/recalculate", cfg.Trust.Recalculate)
			actor.Post("/events", cfg.Trust.IngestEvent)
			actor.Post("/links", cfg.Trust.AddLink)
			actor.Post("/proofs", cfg.Trust.RecordProof)
			actor.Get("/interventions", cfg.Trust.Interventions)
		})

		v1.Route("/reports", func(reports chi.Router) {
			reports.Post("/vouch", cfg.Trust.FileVouch)
			reports.Post("/scam", cfg.Trust.FileScamReport)
		})

		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Post("/reports/{reportID}/review", cfg.Trust.ReviewReport)
			admin.Get("/actors/{actorID}/suspicion", cfg.Trust.SuspicionAudit)
		})
	})

	return r
}
