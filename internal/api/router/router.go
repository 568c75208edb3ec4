package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/incierge/incierge-intake/internal/http/handlers"
	httpmiddleware "github.com/incierge/incierge-intake/internal/http/middleware"
	"github.com/incierge/incierge-intake/internal/intake"
	"github.com/incierge/incierge-intake/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Intake             *intake.Handler
	Admin              *handlers.AdminIntakeHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// SubmitLimiter throttles submissions per client address. Nil disables it.
	SubmitLimiter *httpmiddleware.RateLimiter

	// TrustCloudflareIP takes the client address from CF-Connecting-IP.
	// Leave it off unless Cloudflare fronts every request.
	TrustCloudflareIP bool
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.TrustCloudflareIP {
		r.Use(httpmiddleware.CloudflareClientIP)
	}
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	submit := http.Handler(http.HandlerFunc(cfg.Intake.Submit))
	if cfg.SubmitLimiter != nil {
		submit = httpmiddleware.RateLimitWith(cfg.SubmitLimiter)(submit)
	}
	for _, path := range []string{"/api/contact", "/api/intake"} {
		r.Method(http.MethodPost, path, submit)
		r.Get(path, cfg.Intake.Lookup)
	}

	if cfg.Admin != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			cfg.Admin.Routes(admin)
		})
	}

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
