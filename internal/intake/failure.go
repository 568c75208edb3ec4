package intake

import (
	"fmt"
	"net/http"
)

// State is a step of a single submission's lifecycle.
type State string

const (
	StateReceived    State = "received"
	StateValidated   State = "validated"
	StateVerified    State = "verified"
	StatePersisted   State = "persisted"
	StateNotified    State = "notified"
	StateCompleted   State = "completed"
	StateRejected    State = "rejected"
	StateConfigError State = "config_error"
)

// Reasons carried in error responses.
const (
	ReasonBadContentType          = "bad_content_type"
	ReasonBadRequest              = "bad_request"
	ReasonMissingFields           = "missing_fields"
	ReasonMissingToken            = "missing_token"
	ReasonInvalidEmail            = "invalid_email"
	ReasonFieldTooLong            = "field_too_long"
	ReasonVerificationFailed      = "verification_failed"
	ReasonVerificationUnavailable = "verification_unavailable"
	ReasonConfigError             = "config_error"
	ReasonStorageFailure          = "storage_failure"
	ReasonTicketRequired          = "ticket_required"
	ReasonNotFound                = "not_found"
)

// Failure is the terminal outcome of a submission that did not complete.
type Failure struct {
	State  State
	Reason string
	Status int
	Codes  []string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("intake %s: %s: %v", f.State, f.Reason, f.Err)
	}
	return fmt.Sprintf("intake %s: %s", f.State, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func rejected(reason string, status int, err error) *Failure {
	return &Failure{State: StateRejected, Reason: reason, Status: status, Err: err}
}

func configFailure(err error) *Failure {
	return &Failure{State: StateConfigError, Reason: ReasonConfigError, Status: http.StatusInternalServerError, Err: err}
}
