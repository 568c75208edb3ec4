// Package turnstile verifies Cloudflare Turnstile challenge tokens.
package turnstile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/incierge/incierge-intake/pkg/logging"
)

const (
	DefaultVerifyURL   = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	defaultTimeout     = 5 * time.Second
	defaultMaxAttempts = 2
	minSecretLength    = 8

	// probeToken is never a valid response, so a healthy secret yields invalid-input-response.
	probeToken = "abc"
)

var tracer = otel.Tracer("incierge.internal.turnstile")

// Client calls the siteverify endpoint with a server-side secret.
type Client struct {
	secret      string
	verifyURL   string
	maxAttempts int
	httpClient  *http.Client
	logger      *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithVerifyURL points the client at a different siteverify endpoint.
func WithVerifyURL(u string) Option {
	return func(c *Client) {
		if strings.TrimSpace(u) != "" {
			c.verifyURL = u
		}
	}
}

// WithTimeout bounds each verification call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxAttempts sets how many times a transport failure is attempted in total.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewClient builds a verification client. An empty secret is accepted here and
// reported as ErrSecretMissing on every call.
func NewClient(secret string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		secret:      secret,
		verifyURL:   DefaultVerifyURL,
		maxAttempts: defaultMaxAttempts,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the decoded siteverify response.
type Result struct {
	Success     bool     `json:"success"`
	ErrorCodes  []string `json:"error-codes"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	Action      string   `json:"action,omitempty"`
	CData       string   `json:"cdata,omitempty"`
}

// SecretLength reports the configured secret length for diagnostics.
func (c *Client) SecretLength() int {
	return len(c.secret)
}

// CheckSecret validates the local secret without calling the service.
func (c *Client) CheckSecret() error {
	if c.secret == "" {
		return ErrSecretMissing
	}
	if len(c.secret) < minSecretLength {
		return ErrSecretMalformed
	}
	for _, r := range c.secret {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrSecretMalformed
		}
	}
	return nil
}

// Verify checks token with the service. A nil error means the token was accepted.
// Rejections return *RejectedError, secret problems *ConfigError, and transport
// failures ErrUnavailable. Only transport failures are retried.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (*Result, error) {
	if err := c.CheckSecret(); err != nil {
		return nil, &ConfigError{Err: err}
	}

	ctx, span := tracer.Start(ctx, "turnstile.verify")
	defer span.End()

	result, err := c.call(ctx, token, remoteIP)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("turnstile.success", result.Success),
		attribute.StringSlice("turnstile.error_codes", result.ErrorCodes),
	)
	if result.Success {
		return result, nil
	}
	if hasSecretCode(result.ErrorCodes) {
		c.logger.Error("turnstile secret rejected by service", "error_codes", result.ErrorCodes, "secret_len", len(c.secret))
		return result, &ConfigError{Err: ErrSecretRejected, Codes: result.ErrorCodes}
	}
	return result, &RejectedError{Codes: result.ErrorCodes}
}

// ProbeResult is the outcome of a secret probe.
type ProbeResult struct {
	SecretLength int     `json:"secret_len"`
	SecretOK     bool    `json:"secret_ok"`
	Response     *Result `json:"response,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// Probe verifies a deliberately invalid token. The secret is healthy when the
// only complaint is invalid-input-response.
func (c *Client) Probe(ctx context.Context) (*ProbeResult, error) {
	out := &ProbeResult{SecretLength: len(c.secret)}
	if err := c.CheckSecret(); err != nil {
		out.Error = err.Error()
		return out, nil
	}

	ctx, span := tracer.Start(ctx, "turnstile.probe")
	defer span.End()

	result, err := c.call(ctx, probeToken, "")
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	out.Response = result
	out.SecretOK = len(result.ErrorCodes) > 0
	for _, code := range result.ErrorCodes {
		if code != "invalid-input-response" {
			out.SecretOK = false
		}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, token, remoteIP string) (*Result, error) {
	form := url.Values{}
	form.Set("secret", c.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	encoded := form.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, retry, err := c.post(ctx, encoded)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		c.logger.Warn("turnstile verify attempt failed", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// post performs one siteverify round trip. retry is true only for transport errors.
func (c *Client) post(ctx context.Context, body string) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("siteverify status %d", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode siteverify response: %w", err)
	}
	return &result, false, nil
}

func hasSecretCode(codes []string) bool {
	for _, code := range codes {
		if code == "missing-input-secret" || code == "invalid-input-secret" {
			return true
		}
	}
	return false
}
