package payments

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the plugin's error taxonomy. Controllers map these
// to HTTP statuses; the webhook handler returns a non-2xx only for
// ErrUnauthorizedWebhook, ErrMalformedPayload and ErrRateLimited.
var (
	ErrUnauthorizedWebhook = errors.New("webhook signature verification failed")
	ErrMalformedPayload    = errors.New("malformed webhook payload")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrAmountMismatch      = errors.New("payment amount mismatch")
	ErrProviderCall        = errors.New("payment provider call failed")
	ErrNotFound            = errors.New("record not found")
)

// ValidationError reports a client-input problem on a specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
