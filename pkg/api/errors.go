package api

import (
	"errors"
	"net/http"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

var (
	// ErrUnauthorized is returned when the bearer token is missing or invalid
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotConfigured is returned when required configuration is absent
	ErrNotConfigured = errors.New("service not configured")

	// ErrUpstream is returned when an upstream service (e.g. the auth server) fails
	ErrUpstream = errors.New("upstream service error")
)

// StatusFor maps an error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrNotConfigured), errors.Is(err, billing.ErrProviderNotConfigured):
		return http.StatusInternalServerError, "configuration_error"
	case errors.Is(err, billing.ErrInvalidWebhookSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, billing.ErrInvalidWebhookPayload):
		return http.StatusBadRequest, "invalid_payload"
	case errors.Is(err, entitlement.ErrInvalidEntitlement):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, billing.ErrCustomerNotFound):
		return http.StatusNotFound, "no_customer"
	case errors.Is(err, billing.ErrProviderAPIError),
		errors.Is(err, ErrUpstream),
		errors.Is(err, entitlement.ErrStorageUnavailable),
		errors.Is(err, entitlement.ErrCircuitOpen):
		return http.StatusInternalServerError, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
