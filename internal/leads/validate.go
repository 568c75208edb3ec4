package leads

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks required fields, the token, then formats and sizes.
// Checks run on trimmed values; the submission itself is left as submitted.
func (s *Submission) Validate() error {
	trimmed := Submission{
		Name:    strings.TrimSpace(s.Name),
		Email:   strings.TrimSpace(s.Email),
		Company: strings.TrimSpace(s.Company),
		Website: strings.TrimSpace(s.Website),
		Message: strings.TrimSpace(s.Message),
	}
	if trimmed.Name == "" || trimmed.Email == "" || trimmed.Message == "" {
		return ErrMissingFields
	}
	if strings.TrimSpace(s.Token) == "" {
		return ErrMissingToken
	}

	if err := validate.Struct(trimmed); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "email" {
					return ErrInvalidEmail
				}
			}
			return ErrFieldTooLong
		}
		return err
	}
	return nil
}
