package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/incierge/incierge-intake/internal/config"
	"github.com/incierge/incierge-intake/internal/leads"
	"github.com/incierge/incierge-intake/pkg/logging"
)

// Lead store backends accepted by LEAD_STORE.
const (
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"
	StoreMemory   = "memory"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err, "addr", cfg.RedisAddr)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLeadStore selects the primary record store. awsCfg is only consulted
// for the dynamodb backend. The returned close func is never nil.
func BuildLeadStore(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (leads.Store, func(), error) {
	noop := func() {}
	if cfg == nil {
		return nil, noop, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.LeadStore {
	case StoreRedis, "":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, noop, fmt.Errorf("bootstrap: redis lead store unavailable at %q", cfg.RedisAddr)
		}
		logger.Info("lead store ready", "backend", StoreRedis, "prefix", cfg.LeadKeyPrefix)
		return leads.NewRedisStore(client, cfg.LeadKeyPrefix), func() { _ = client.Close() }, nil

	case StoreDynamoDB:
		if awsCfg == nil {
			return nil, noop, fmt.Errorf("bootstrap: dynamodb lead store needs aws config")
		}
		if strings.TrimSpace(cfg.LeadsTable) == "" {
			return nil, noop, fmt.Errorf("bootstrap: LEADS_TABLE is required for dynamodb")
		}
		logger.Info("lead store ready", "backend", StoreDynamoDB, "table", cfg.LeadsTable)
		return leads.NewDynamoStore(dynamodb.NewFromConfig(*awsCfg), cfg.LeadsTable, cfg.LeadKeyPrefix), noop, nil

	case StoreMemory:
		logger.Warn("using in-memory lead store; records are lost on restart")
		return leads.NewInMemoryStore(), noop, nil

	default:
		return nil, noop, fmt.Errorf("bootstrap: unknown LEAD_STORE %q", cfg.LeadStore)
	}
}
