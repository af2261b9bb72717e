package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "email",
		Message: "invalid format",
	}

	expected := "validation error on field 'email': invalid format"
	if err.Error() != expected {
		t.Errorf("Expected %s, got %s", expected, err.Error())
	}
}

func TestMultiError_Error(t *testing.T) {
	tests := []struct {
		name     string
		errors   []error
		expected string
	}{
		{
			name:     "No errors",
			errors:   []error{},
			expected: "no errors",
		},
		{
			name:     "Single error",
			errors:   []error{errors.New("first error")},
			expected: "first error",
		},
		{
			name:     "Multiple errors",
			errors:   []error{errors.New("first error"), errors.New("second error")},
			expected: "first error (and 1 more errors)",
		},
		{
			name: "Three errors",
			errors: []error{
				errors.New("first error"),
				errors.New("second error"),
				errors.New("third error"),
			},
			expected: "first error (and 2 more errors)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			multiErr := MultiError{Errors: tt.errors}
			result := multiErr.Error()
			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestMultiError_Add(t *testing.T) {
	multiErr := &MultiError{}

	// Add nil error - should not be added
	multiErr.Add(nil)
	if len(multiErr.Errors) != 0 {
		t.Errorf("Expected 0 errors after adding nil, got %d", len(multiErr.Errors))
	}

	// Add real error
	err1 := errors.New("first error")
	multiErr.Add(err1)
	if len(multiErr.Errors) != 1 {
		t.Errorf("Expected 1 error, got %d", len(multiErr.Errors))
	}

	// Add another error
	err2 := errors.New("second error")
	multiErr.Add(err2)
	if len(multiErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(multiErr.Errors))
	}

	// Check errors are in correct order
	if multiErr.Errors[0] != err1 {
		t.Error("First error not in correct position")
	}
	if multiErr.Errors[1] != err2 {
		t.Error("Second error not in correct position")
	}
}

func TestMultiError_HasErrors(t *testing.T) {
	multiErr := &MultiError{}

	// No errors initially
	if multiErr.HasErrors() {
		t.Error("Expected HasErrors to return false for empty MultiError")
	}

	// Add an error
	multiErr.Add(errors.New("test error"))
	if !multiErr.HasErrors() {
		t.Error("Expected HasErrors to return true after adding error")
	}
}

func TestDatabaseError_Error(t *testing.T) {
	originalErr := errors.New("connection failed")
	dbErr := DatabaseError{
		Operation: "query",
		Err:       originalErr,
	}

	expected := "database error during query: connection failed"
	if dbErr.Error() != expected {
		t.Errorf("Expected %s, got %s", expected, dbErr.Error())
	}
}

func TestDatabaseError_Unwrap(t *testing.T) {
	originalErr := errors.New("connection failed")
	dbErr := DatabaseError{
		Operation: "query",
		Err:       originalErr,
	}

	unwrapped := dbErr.Unwrap()
	if unwrapped != originalErr {
		t.Error("Expected Unwrap to return original error")
	}
}

func TestMissingHeadersError_Error(t *testing.T) {
	err := MissingHeadersError{Headers: []string{"svix-id", "svix-signature"}}

	expected := "missing webhook headers: svix-id, svix-signature"
	if err.Error() != expected {
		t.Errorf("Expected %s, got %s", expected, err.Error())
	}
}

func TestSignatureInvalidError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      SignatureInvalidError
		expected string
	}{
		{name: "No reason", err: SignatureInvalidError{}, expected: "webhook signature invalid"},
		{name: "With reason", err: SignatureInvalidError{Reason: "timestamp too old"}, expected: "webhook signature invalid: timestamp too old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.err.Error())
			}
		})
	}
}

func TestInsufficientCreditsError_Error(t *testing.T) {
	err := InsufficientCreditsError{UserID: "u1", Balance: 3, Required: 5}

	expected := "insufficient credits: balance 3, required 5"
	if err.Error() != expected {
		t.Errorf("Expected %s, got %s", expected, err.Error())
	}
}

func TestInvalidAIConfigError_Error(t *testing.T) {
	missing := InvalidAIConfigError{Missing: []string{"apiKey", "model"}}
	if missing.Error() != "invalid AI config: missing apiKey, model" {
		t.Errorf("unexpected message: %s", missing.Error())
	}

	reason := InvalidAIConfigError{Reason: "unsupported provider \"acme\""}
	if reason.Error() != `invalid AI config: unsupported provider "acme"` {
		t.Errorf("unexpected message: %s", reason.Error())
	}
}

func TestClassifiers(t *testing.T) {
	wrapped := fmt.Errorf("verify: %w", SignatureInvalidError{Reason: "mismatch"})
	if !IsVerification(wrapped) {
		t.Error("Expected wrapped SignatureInvalidError to be a verification error")
	}
	if !IsVerification(MissingHeadersError{Headers: []string{"svix-id"}}) {
		t.Error("Expected MissingHeadersError to be a verification error")
	}
	if IsVerification(NotConfiguredError{Source: "identity"}) {
		t.Error("NotConfiguredError must not be classified as a verification error")
	}
	if !IsNotConfigured(fmt.Errorf("wrap: %w", NotConfiguredError{Source: "billing"})) {
		t.Error("Expected wrapped NotConfiguredError to be detected")
	}
	if !IsInsufficientCredits(fmt.Errorf("charge: %w", InsufficientCreditsError{Balance: 1, Required: 2})) {
		t.Error("Expected wrapped InsufficientCreditsError to be detected")
	}
	if IsInsufficientCredits(ErrNotFound) {
		t.Error("ErrNotFound is not an InsufficientCreditsError")
	}
}

func TestMultiError_ErrorOrNil(t *testing.T) {
	var multiErr MultiError
	if multiErr.ErrorOrNil() != nil {
		t.Error("Expected nil for empty MultiError")
	}
	multiErr.Add(errors.New("boom"))
	if multiErr.ErrorOrNil() == nil {
		t.Error("Expected error after Add")
	}
}

func TestErrorConstants(t *testing.T) {
	// Test that error constants are defined
	errorConstants := []error{
		ErrNotFound,
		ErrInvalidInput,
		ErrUnauthorized,
		ErrForbidden,
		ErrConflict,
		ErrRateLimit,
		ErrServiceUnavailable,
		ErrMalformedEvent,
	}

	for i, err := range errorConstants {
		if err == nil {
			t.Errorf("Error constant at index %d is nil", i)
		}
		if err.Error() == "" {
			t.Errorf("Error constant at index %d has empty message", i)
		}
	}
}