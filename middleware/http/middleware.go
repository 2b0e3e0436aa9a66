// Package http provides HTTP middleware that gates routes on premium entitlement
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance
	Manager *entitlement.Manager

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnNotPremium is called when the user has no premium access
	// If nil, returns 403 with error "premium_required"
	OnNotPremium func(w http.ResponseWriter, r *http.Request, ent *entitlement.Entitlement)

	// OnError is called when the entitlement cannot be read
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// RequirePremium creates an HTTP middleware that only lets premium users through.
// The entitlement is stored in the request context for the next handler.
func RequirePremium(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("fit4seniors/http: Config.Manager is required")
	}
	if config.GetUserID == nil {
		panic("fit4seniors/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					writeError(w, http.StatusUnauthorized, "unauthorized")
				}
				return
			}

			ent, err := config.Manager.GetEntitlement(r.Context(), userID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					writeError(w, http.StatusInternalServerError, "internal_error")
				}
				return
			}

			if !ent.IsPremium {
				if config.OnNotPremium != nil {
					config.OnNotPremium(w, r, ent)
				} else {
					writeError(w, http.StatusForbidden, "premium_required")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithEntitlement(r.Context(), ent)))
		})
	}
}

// HandlerFunc creates the premium gate for a single http.HandlerFunc
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := RequirePremium(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code}) //nolint:errcheck // Response already committed
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDKey is the context key for user ID
	UserIDKey ContextKey = "fit4seniors:userID"

	entitlementKey ContextKey = "fit4seniors:entitlement"
)

// WithEntitlement returns a copy of ctx carrying ent
func WithEntitlement(ctx context.Context, ent *entitlement.Entitlement) context.Context {
	return context.WithValue(ctx, entitlementKey, ent)
}

// EntitlementFromContext returns the entitlement stored by RequirePremium
func EntitlementFromContext(ctx context.Context) (*entitlement.Entitlement, bool) {
	ent, ok := ctx.Value(entitlementKey).(*entitlement.Entitlement)
	return ent, ok
}

// FromContext returns an UserIDExtractor that gets user ID from request context
func FromContext(key ContextKey) UserIDExtractor {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}

// FromHeader returns an UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}
