package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/incierge/incierge-intake/internal/analytics"
	"github.com/incierge/incierge-intake/internal/archive"
	appconfig "github.com/incierge/incierge-intake/internal/config"
	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/internal/observability/metrics"
	"github.com/incierge/incierge-intake/pkg/logging"
)

// BuildMirror connects the optional Postgres reporting mirror. It returns nil
// when the secondary store is disabled or the database is unreachable.
func BuildMirror(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*leads.PostgresMirror, func()) {
	noop := func() {}
	if cfg == nil || !cfg.EnableSecondaryStore || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, noop
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("postgres mirror disabled", "error", err)
		return nil, noop
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("postgres mirror disabled", "error", err)
		pool.Close()
		return nil, noop
	}
	logger.Info("postgres mirror enabled")
	return leads.NewPostgresMirror(pool), pool.Close
}

// BuildArchive returns the S3 archive, or nil when no bucket is configured.
func BuildArchive(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) *archive.Store {
	if cfg == nil || !cfg.EnableSecondaryStore || strings.TrimSpace(cfg.ArchiveBucket) == "" || awsCfg == nil {
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	return archive.NewStore(client, cfg.ArchiveBucket, cfg.ArchivePrefix, logger)
}

// BuildAnalytics returns the Plausible emitter or a no-op when analytics is
// off or no domain is configured.
func BuildAnalytics(cfg *appconfig.Config, m *metrics.IntakeMetrics, logger *logging.Logger) analytics.Emitter {
	if cfg == nil || !cfg.EnableAnalytics {
		return analytics.NopEmitter{}
	}
	emitter := analytics.NewPlausibleEmitter(cfg.PlausibleEventURL, cfg.PlausibleDomain, m, logger)
	if emitter == nil {
		if logger != nil {
			logger.Warn("analytics enabled but PLAUSIBLE_DOMAIN not set")
		}
		return analytics.NopEmitter{}
	}
	return emitter
}
