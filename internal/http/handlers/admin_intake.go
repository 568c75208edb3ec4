package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/incierge/incierge-intake/internal/config"
	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/internal/turnstile"
	"github.com/incierge/incierge-intake/pkg/logging"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// SecretProber checks the verification secret against the live service.
type SecretProber interface {
	Probe(ctx context.Context) (*turnstile.ProbeResult, error)
}

// RecentLister lists tickets from the time index.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]leads.IndexEntry, error)
}

// TicketReader writes a stored record for a ticket.
type TicketReader interface {
	LookupTicket(w http.ResponseWriter, r *http.Request, ticket string)
}

// ValueStatus describes a configuration value without revealing it.
type ValueStatus struct {
	Present bool `json:"present"`
	Length  int  `json:"length"`
}

// ConfigReport is the body of GET /admin/health/config.
type ConfigReport struct {
	Values        map[string]ValueStatus `json:"values"`
	LeadStore     string                 `json:"lead_store"`
	EmailProvider string                 `json:"email_provider"`
	Capabilities  map[string]bool        `json:"capabilities"`
	SecretOK      bool                   `json:"turnstile_secret_ok"`
}

// BuildConfigReport summarises cfg. emailProvider is the sender actually
// selected at startup, which may differ from the configured preference.
func BuildConfigReport(cfg *config.Config, emailProvider string) ConfigReport {
	values := map[string]string{
		"TURNSTILE_SECRET":      cfg.TurnstileSecret,
		"TURNSTILE_VERIFY_URL":  cfg.TurnstileVerifyURL,
		"MAIL_FROM":             cfg.MailFrom,
		"MAIL_TO":               cfg.MailTo,
		"SITE_NAME":             cfg.SiteName,
		"SENDGRID_API_KEY":      cfg.SendGridAPIKey,
		"SMTP_HOST":             cfg.SMTPHost,
		"SMTP_USERNAME":         cfg.SMTPUsername,
		"SMTP_PASSWORD":         cfg.SMTPPassword,
		"REDIS_ADDR":            cfg.RedisAddr,
		"REDIS_PASSWORD":        cfg.RedisPassword,
		"LEADS_TABLE":           cfg.LeadsTable,
		"DATABASE_URL":          cfg.DatabaseURL,
		"ARCHIVE_BUCKET":        cfg.ArchiveBucket,
		"PLAUSIBLE_DOMAIN":      cfg.PlausibleDomain,
		"PUBLIC_BASE_URL":       cfg.PublicBaseURL,
		"ADMIN_JWT_SECRET":      cfg.AdminJWTSecret,
		"AWS_ACCESS_KEY_ID":     cfg.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": cfg.AWSSecretAccessKey,
	}
	report := ConfigReport{
		Values:        make(map[string]ValueStatus, len(values)),
		LeadStore:     cfg.LeadStore,
		EmailProvider: emailProvider,
		Capabilities: map[string]bool{
			"accept_json":     cfg.AcceptJSON,
			"secondary_store": cfg.EnableSecondaryStore,
			"utm_capture":     cfg.EnableUTMCapture,
			"analytics":       cfg.EnableAnalytics,
			"ses":             cfg.SESEnabled,
		},
	}
	for name, value := range values {
		report.Values[name] = ValueStatus{Present: value != "", Length: len(value)}
	}
	report.SecretOK = turnstile.NewClient(cfg.TurnstileSecret, nil).CheckSecret() == nil
	return report
}

// AdminIntakeHandler serves the operator diagnostics under /admin.
type AdminIntakeHandler struct {
	report ConfigReport
	prober SecretProber
	recent RecentLister
	reader TicketReader
	logger *logging.Logger
}

func NewAdminIntakeHandler(report ConfigReport, prober SecretProber, recent RecentLister, reader TicketReader, logger *logging.Logger) *AdminIntakeHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminIntakeHandler{
		report: report,
		prober: prober,
		recent: recent,
		reader: reader,
		logger: logger,
	}
}

// Routes mounts the diagnostics endpoints on r.
func (h *AdminIntakeHandler) Routes(r chi.Router) {
	r.Get("/health/config", h.Config)
	r.Get("/health/verify", h.Verify)
	r.Get("/leads/recent", h.Recent)
	r.Get("/leads/{ticket}", h.Lead)
}

// Config handles GET /admin/health/config.
func (h *AdminIntakeHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.report)
}

// Verify handles GET /admin/health/verify.
func (h *AdminIntakeHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil {
		jsonError(w, "verifier not configured", http.StatusServiceUnavailable)
		return
	}
	result, err := h.prober.Probe(r.Context())
	if err != nil {
		h.logger.Warn("turnstile probe failed", "error", err)
		writeJSON(w, http.StatusBadGateway, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Recent handles GET /admin/leads/recent?limit=N.
func (h *AdminIntakeHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	entries, err := h.recent.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent leads failed", "error", err)
		jsonError(w, "storage_failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leads": entries,
		"count": len(entries),
	})
}

// Lead handles GET /admin/leads/{ticket}.
func (h *AdminIntakeHandler) Lead(w http.ResponseWriter, r *http.Request) {
	h.reader.LookupTicket(w, r, chi.URLParam(r, "ticket"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
