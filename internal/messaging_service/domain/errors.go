package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure. Transient kinds may be retried on
// the fallback provider; the rest must not be.
type ErrorKind string

const (
	ErrKindValidation  ErrorKind = "validation"
	ErrKindNetwork     ErrorKind = "network"
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindRateLimited ErrorKind = "rate_limited"
	ErrKindAuth        ErrorKind = "auth"
	ErrKindRejected    ErrorKind = "rejected"
)

// ProviderError is returned by provider adapters on any send failure.
type ProviderError struct {
	ProviderName string
	Kind         ErrorKind
	StatusCode   int // 0 when the request never reached the vendor
	Message      string
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %s", e.ProviderName, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.ProviderName, e.Kind, e.Message)
}

// Transient reports whether a different provider could plausibly succeed right
// now. Validation, auth and rejection failures are permanent by definition:
// the same content would fail (or the credentials are wrong) anywhere.
func (e *ProviderError) Transient() bool {
	switch e.Kind {
	case ErrKindNetwork, ErrKindTimeout, ErrKindRateLimited:
		return true
	default:
		return false
	}
}

// AsProviderError unwraps err into a *ProviderError if one is in the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

var (
	// ErrUserNotFound is returned by wellness lookups when no profile matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoMeasurements is returned when a user has no weight history yet.
	ErrNoMeasurements = errors.New("no weight measurements recorded")
	// ErrNoPendingAnalysis is returned when there is no food analysis awaiting confirmation.
	ErrNoPendingAnalysis = errors.New("no pending food analysis")
	// ErrUnknownProvider is returned when a provider name has no registered adapter.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrInvalidPhone is returned when a recipient phone cannot be normalized.
	ErrInvalidPhone = errors.New("invalid phone number")
)
