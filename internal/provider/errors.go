package provider

import (
	"errors"
	"fmt"
)

// ErrBadSignature is returned by ParseWebhook when signature verification
// fails. The payload must not be processed.
var ErrBadSignature = errors.New("webhook signature verification failed")

// ErrNonEvent is returned by ParseWebhook for payloads that are valid but
// carry no engagement event (SNS subscription confirmations, provider send
// acks). Callers acknowledge them without processing.
var ErrNonEvent = errors.New("payload carries no engagement event")

// APIError is a provider API failure with enough detail for the retry
// classifier and for operator logs.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryableError classifies a SendEmail failure. Rate limits and server
// errors are transient; other API rejections (auth, validation) are final.
// Non-API errors are network-level failures and count as transient.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	return true
}
