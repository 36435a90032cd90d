package api

import (
	"errors"
	"net/http"

	"fairgate/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var authn *domain.AuthenticationError
	var accessDenied *domain.AccessDeniedError
	var notFound *domain.NotFoundError
	var scope *domain.ScopeError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var sample *domain.InsufficientSampleError
	var isolation *domain.IsolationError
	var ledgerDown *domain.LedgerUnavailableError
	var policyLoad *domain.PolicyLoadError

	switch {
	case errors.As(err, &authn):
		return http.StatusUnauthorized
	case errors.As(err, &accessDenied):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &scope):
		// An out-of-scope resource must look exactly like a missing one.
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &sample):
		return http.StatusUnprocessableEntity
	case errors.As(err, &isolation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ledgerDown):
		return http.StatusServiceUnavailable
	case errors.As(err, &policyLoad):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the body text for err. Scope denials are rewritten
// to the not-found text so the two cases stay byte-identical on the wire,
// and unmapped errors never expose internal detail.
func clientMessage(err error) string {
	var scope *domain.ScopeError
	if errors.As(err, &scope) {
		return "resource not found"
	}
	if httpStatusFromDomainError(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
