// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings that clients branch on. Every
// error response carries one of them next to the HTTP status (see fail()).
//
// Service errors are grouped into kinds (not found, validation, conflict,
// transient) and mapped here in one place:
//
//	services.ErrNotFound     -> 404 not_found
//	services.ErrValidation   -> 400 validation_failed
//	services.ErrConflict     -> 409 conflict
//	services.ErrStoreTimeout -> 503 store_timeout
//	anything else            -> 500 internal_error
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "customer 0912345678 not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-crm-backend/internal/http/middleware"
	"github.com/tbourn/go-crm-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeStoreTimeout        = "store_timeout"
	ErrCodeIdempotencyMismatch = "idempotency_key_mismatch"
)

// statusFor maps a service error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrStoreTimeout):
		return http.StatusServiceUnavailable, ErrCodeStoreTimeout
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, ErrCodeConflict
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// failErr writes the error envelope for a service error. Client errors echo
// the service message; server errors log the cause and return a generic one.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(err)
	switch {
	case status == http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
		fail(c, status, code, "the operation timed out and was rolled back; retry")
	case status >= http.StatusInternalServerError:
		_ = c.Error(err)
		middleware.LoggerFrom(c).Error().Err(err).Msg("request failed")
		fail(c, status, code, "internal server error")
	default:
		fail(c, status, code, err.Error())
	}
}
