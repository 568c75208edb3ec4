package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Bot verification (Cloudflare Turnstile)
	TurnstileSecret      string
	TurnstileVerifyURL   string
	TurnstileTimeout     time.Duration
	TurnstileMaxAttempts int

	// Lead record storage
	LeadStore     string // redis | dynamodb | memory
	LeadKeyPrefix string
	LeadTTL       time.Duration
	LeadsTable    string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Intake behaviour
	ConfirmationPath     string
	AcceptJSON           bool
	EnableSecondaryStore bool
	EnableUTMCapture     bool
	EnableAnalytics      bool
	SideEffectTimeout    time.Duration
	RateLimitRPS         float64
	RateLimitBurst       int
	CORSAllowedOrigins   []string
	TrustCFConnectingIP  bool
	AdminJWTSecret       string
	DatabaseURL          string
	ArchiveBucket        string
	ArchivePrefix        string

	// Mail
	EmailProvider  string // auto | sendgrid | ses | smtp | stub
	MailFrom       string
	MailTo         string
	SiteName       string
	SendGridAPIKey string
	SESEnabled     bool
	SESConfigSet   string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string

	// Analytics
	PlausibleEventURL string
	PlausibleDomain   string

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		TurnstileSecret:      strings.TrimSpace(os.Getenv("TURNSTILE_SECRET")),
		TurnstileVerifyURL:   getEnv("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		TurnstileTimeout:     getEnvAsDuration("TURNSTILE_TIMEOUT", 5*time.Second),
		TurnstileMaxAttempts: getEnvAsInt("TURNSTILE_MAX_ATTEMPTS", 2),

		LeadStore:     strings.ToLower(strings.TrimSpace(getEnv("LEAD_STORE", "redis"))),
		LeadKeyPrefix: getEnv("LEAD_KEY_PREFIX", "contact"),
		LeadTTL:       getEnvAsDuration("LEAD_TTL", 14*24*time.Hour),
		LeadsTable:    getEnv("LEADS_TABLE", "contact_leads"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ConfirmationPath:     getEnv("CONFIRMATION_PATH", "/contact/thanks/"),
		AcceptJSON:           getEnvAsBool("INTAKE_ACCEPT_JSON", false),
		EnableSecondaryStore: getEnvAsBool("INTAKE_ENABLE_SECONDARY_STORE", false),
		EnableUTMCapture:     getEnvAsBool("INTAKE_ENABLE_UTM_CAPTURE", true),
		EnableAnalytics:      getEnvAsBool("INTAKE_ENABLE_ANALYTICS", false),
		SideEffectTimeout:    getEnvAsDuration("INTAKE_SIDE_EFFECT_TIMEOUT", 10*time.Second),
		RateLimitRPS:         getEnvAsFloat("RATE_LIMIT_RPS", 0.2),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 5),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),
		TrustCFConnectingIP:  getEnvAsBool("TRUST_CF_CONNECTING_IP", false),
		AdminJWTSecret:       getEnv("ADMIN_JWT_SECRET", ""),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		ArchiveBucket:        getEnv("ARCHIVE_BUCKET", ""),
		ArchivePrefix:        getEnv("ARCHIVE_PREFIX", "contact-leads/v1"),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		MailFrom:       strings.TrimSpace(getEnv("MAIL_FROM", "")),
		MailTo:         strings.TrimSpace(getEnv("MAIL_TO", "")),
		SiteName:       strings.TrimSpace(getEnv("SITE_NAME", "INCIERGE")),
		SendGridAPIKey: strings.TrimSpace(getEnv("SENDGRID_API_KEY", "")),
		SESEnabled:     getEnvAsBool("AWS_SES_ENABLED", false),
		SESConfigSet:   strings.TrimSpace(getEnv("AWS_SES_CONFIGURATION_SET", "")),
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),

		PlausibleEventURL: getEnv("PLAUSIBLE_EVENT_URL", "https://plausible.io/api/event"),
		PlausibleDomain:   getEnv("PLAUSIBLE_DOMAIN", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-northeast-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
