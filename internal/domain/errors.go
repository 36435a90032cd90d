// Package domain defines core types, interfaces, and errors for the platform.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates a valid credential was refused an operation.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// AuthenticationError indicates a missing, malformed, unsigned, or expired
// credential. Always fatal to the request; never retried.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// ScopeError indicates an attempted access to an existing but out-of-scope
// resource. Callers outside the gateway and ledger must render it exactly
// like a NotFoundError so existence is never leaked.
type ScopeError struct {
	Message string
}

func (e *ScopeError) Error() string { return e.Message }

// IsolationError indicates general-path code attempted to reach the isolated
// partition, or isolated-category content was detected outside it. Always
// escalated as a high-severity security event.
type IsolationError struct {
	Message string
}

func (e *IsolationError) Error() string { return e.Message }

// InsufficientSampleError is returned when an aggregate group is backed by
// fewer records than the configured minimum sample size. It is a typed
// refusal, not a failure of the aggregation machinery.
type InsufficientSampleError struct {
	Required int
	Actual   int
}

func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("aggregate group below minimum sample size (%d required)", e.Required)
}

// LedgerUnavailableError indicates the ledger store could not accept an
// event. The operation that triggered the write must itself fail: an
// unauditable action is not permitted to succeed.
type LedgerUnavailableError struct {
	Message string
	Err     error
}

func (e *LedgerUnavailableError) Error() string { return e.Message }

func (e *LedgerUnavailableError) Unwrap() error { return e.Err }

// PolicyLoadError indicates a policy snapshot failed to load or validate.
// The previous valid snapshot stays in effect.
type PolicyLoadError struct {
	Message string
	Err     error
}

func (e *PolicyLoadError) Error() string { return e.Message }

func (e *PolicyLoadError) Unwrap() error { return e.Err }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrAuthentication creates an AuthenticationError with a formatted message.
func ErrAuthentication(format string, args ...interface{}) *AuthenticationError {
	return &AuthenticationError{Message: fmt.Sprintf(format, args...)}
}

// ErrScope creates a ScopeError with a formatted message.
func ErrScope(format string, args ...interface{}) *ScopeError {
	return &ScopeError{Message: fmt.Sprintf(format, args...)}
}

// ErrIsolation creates an IsolationError with a formatted message.
func ErrIsolation(format string, args ...interface{}) *IsolationError {
	return &IsolationError{Message: fmt.Sprintf(format, args...)}
}

// ErrInsufficientSample creates an InsufficientSampleError.
func ErrInsufficientSample(required, actual int) *InsufficientSampleError {
	return &InsufficientSampleError{Required: required, Actual: actual}
}

// ErrLedgerUnavailable wraps a storage failure behind the ledger boundary.
func ErrLedgerUnavailable(err error) *LedgerUnavailableError {
	return &LedgerUnavailableError{Message: "ledger unavailable", Err: err}
}

// ErrPolicyLoad wraps a policy load or validation failure.
func ErrPolicyLoad(err error, format string, args ...interface{}) *PolicyLoadError {
	return &PolicyLoadError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
