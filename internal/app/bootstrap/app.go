package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/incierge/incierge-intake/internal/api/router"
	appconfig "github.com/incierge/incierge-intake/internal/config"
	"github.com/incierge/incierge-intake/internal/http/handlers"
	httpmiddleware "github.com/incierge/incierge-intake/internal/http/middleware"
	"github.com/incierge/incierge-intake/internal/intake"
	"github.com/incierge/incierge-intake/internal/notify"
	"github.com/incierge/incierge-intake/internal/observability/metrics"
	"github.com/incierge/incierge-intake/internal/turnstile"
	"github.com/incierge/incierge-intake/pkg/logging"
)

// App is a fully wired intake service shared by the HTTP server and the
// Lambda entrypoint.
type App struct {
	Handler       http.Handler
	Service       *intake.Service
	LeadStore     string
	EmailProvider string

	closers []func()
}

// NeedsAWS reports whether any enabled component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.LeadStore == StoreDynamoDB ||
		cfg.SESEnabled ||
		(cfg.EnableSecondaryStore && strings.TrimSpace(cfg.ArchiveBucket) != "")
}

// Build wires every component from cfg. awsCfg may be nil when NeedsAWS is false.
// A nil registry gets a fresh one.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, reg *prometheus.Registry, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	verifier := turnstile.NewClient(cfg.TurnstileSecret, logger,
		turnstile.WithVerifyURL(cfg.TurnstileVerifyURL),
		turnstile.WithTimeout(cfg.TurnstileTimeout),
		turnstile.WithMaxAttempts(cfg.TurnstileMaxAttempts),
	)
	if err := verifier.CheckSecret(); err != nil {
		logger.Error("turnstile secret unusable; submissions will fail", "error", err, "secret_len", verifier.SecretLength())
	}

	store, closeStore, err := BuildLeadStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{LeadStore: cfg.LeadStore, closers: []func(){closeStore}}
	if app.LeadStore == "" {
		app.LeadStore = StoreRedis
	}

	intakeMetrics := metrics.NewIntakeMetrics(reg)
	sender, provider, _ := BuildEmailSender(cfg, awsCfg, logger)
	app.EmailProvider = provider

	deps := intake.Deps{
		Verifier: verifier,
		Records:  store,
		Index:    store,
		Notifier: notify.NewDispatcher(sender, notify.DispatcherConfig{
			SiteName: cfg.SiteName,
			AdminTo:  cfg.MailTo,
		}, logger),
		Analytics:  BuildAnalytics(cfg, intakeMetrics, logger),
		Background: intake.NewBackground(cfg.SideEffectTimeout, logger),
		Metrics:    intakeMetrics,
	}
	if mirror, closeMirror := BuildMirror(ctx, cfg, logger); mirror != nil {
		deps.Mirror = mirror
		app.closers = append(app.closers, closeMirror)
	}
	if archiver := BuildArchive(cfg, awsCfg, logger); archiver != nil {
		deps.Archiver = archiver
	}

	app.Service = intake.NewService(deps, intake.Options{
		TTL:                  cfg.LeadTTL,
		CaptureUTM:           cfg.EnableUTMCapture,
		EnableSecondaryStore: cfg.EnableSecondaryStore,
		EnableAnalytics:      cfg.EnableAnalytics,
		SiteURL:              cfg.PublicBaseURL,
	}, logger)
	intakeHandler := intake.NewHandler(app.Service, intake.HandlerConfig{
		AcceptJSON:       cfg.AcceptJSON,
		ConfirmationPath: cfg.ConfirmationPath,
	}, logger)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	app.Handler = router.New(&router.Config{
		Logger: logger,
		Intake: intakeHandler,
		Admin: handlers.NewAdminIntakeHandler(
			handlers.BuildConfigReport(cfg, provider),
			verifier, app.Service, intakeHandler, logger,
		),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SubmitLimiter:      limiter,
		TrustCloudflareIP:  cfg.TrustCFConnectingIP,
	})

	logger.Info("intake app ready",
		"lead_store", app.LeadStore,
		"email_provider", provider,
		"accept_json", cfg.AcceptJSON,
		"secondary_store", cfg.EnableSecondaryStore,
		"analytics", cfg.EnableAnalytics,
	)
	return app, nil
}

// Drain waits for in-flight side effects.
func (a *App) Drain(ctx context.Context) error {
	return a.Service.Background().Wait(ctx)
}

// Close drains side effects and releases store connections.
func (a *App) Close(ctx context.Context) error {
	err := a.Drain(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	return err
}
