package turnstile

import (
	"errors"
	"strings"
)

var (
	// ErrSecretMissing means no secret is configured.
	ErrSecretMissing = errors.New("turnstile: secret not configured")

	// ErrSecretMalformed means the configured secret cannot be a valid key.
	ErrSecretMalformed = errors.New("turnstile: secret malformed")

	// ErrSecretRejected means the service refused the configured secret.
	ErrSecretRejected = errors.New("turnstile: secret rejected by service")

	// ErrUnavailable means the service could not be reached or answered with a non-2xx status.
	ErrUnavailable = errors.New("turnstile: verification service unavailable")
)

// ConfigError is a server-side verification misconfiguration.
type ConfigError struct {
	Err   error
	Codes []string
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RejectedError means the service evaluated the token and refused it.
type RejectedError struct {
	Codes []string
}

func (e *RejectedError) Error() string {
	if len(e.Codes) == 0 {
		return "turnstile: token rejected"
	}
	return "turnstile: token rejected: " + strings.Join(e.Codes, ",")
}
