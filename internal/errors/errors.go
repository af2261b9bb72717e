package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Application-specific errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("resource conflict")
	ErrRateLimit          = errors.New("rate limit exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrMalformedEvent     = errors.New("malformed webhook event")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error `json:"errors"`
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", e.Errors[0].Error(), len(e.Errors)-1)
}

// Add adds an error to the MultiError
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns nil when nothing was collected
func (e *MultiError) ErrorOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return *e
}

// DatabaseError represents a database-related error
type DatabaseError struct {
	Operation string
	Err       error
}

func (e DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

func (e DatabaseError) Unwrap() error {
	return e.Err
}

// MissingHeadersError is returned when a webhook delivery lacks one or more
// of the id, timestamp and signature headers.
type MissingHeadersError struct {
	Headers []string
}

func (e MissingHeadersError) Error() string {
	return fmt.Sprintf("missing webhook headers: %s", strings.Join(e.Headers, ", "))
}

// SignatureInvalidError is returned when a webhook signature does not match
// the received bytes or the delivery timestamp is outside the tolerance window.
type SignatureInvalidError struct {
	Reason string
}

func (e SignatureInvalidError) Error() string {
	if e.Reason == "" {
		return "webhook signature invalid"
	}
	return "webhook signature invalid: " + e.Reason
}

// NotConfiguredError signals a deployment problem: no secret is configured
// for the webhook source. It is not caused by the request.
type NotConfiguredError struct {
	Source string
}

func (e NotConfiguredError) Error() string {
	return fmt.Sprintf("webhook source %q not configured", e.Source)
}

// InsufficientCreditsError is returned when a pay-as-you-go user cannot
// afford a metered operation. It is user-caused and recoverable.
type InsufficientCreditsError struct {
	UserID   string
	Balance  int64
	Required int64
}

func (e InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %d, required %d", e.Balance, e.Required)
}

// InvalidAIConfigError is returned when a legend user's AI configuration is
// incomplete or names an unsupported provider.
type InvalidAIConfigError struct {
	Missing []string
	Reason  string
}

func (e InvalidAIConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("invalid AI config: missing %s", strings.Join(e.Missing, ", "))
	}
	return "invalid AI config: " + e.Reason
}

// IsVerification reports whether err is a request verification failure.
func IsVerification(err error) bool {
	var missing MissingHeadersError
	var invalid SignatureInvalidError
	return errors.As(err, &missing) || errors.As(err, &invalid)
}

// IsNotConfigured reports whether err is a NotConfiguredError.
func IsNotConfigured(err error) bool {
	var nc NotConfiguredError
	return errors.As(err, &nc)
}

// IsInsufficientCredits reports whether err is an InsufficientCreditsError.
func IsInsufficientCredits(err error) bool {
	var ic InsufficientCreditsError
	return errors.As(err, &ic)
}
