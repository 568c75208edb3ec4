package leads

import "errors"

var (
	// ErrMissingFields is returned when name, email or message is blank
	ErrMissingFields = errors.New("name, email and message are required")

	// ErrMissingToken is returned when no bot verification token was submitted
	ErrMissingToken = errors.New("verification token is required")

	// ErrInvalidEmail is returned when the email is not an address
	ErrInvalidEmail = errors.New("email is not a valid address")

	// ErrFieldTooLong is returned when a field exceeds its size limit
	ErrFieldTooLong = errors.New("field exceeds maximum length")

	// ErrNotFound is returned when a ticket is unknown or expired
	ErrNotFound = errors.New("lead not found")

	// ErrTicketExists is returned when a put would overwrite an existing ticket
	ErrTicketExists = errors.New("ticket already stored")
)
