// Package echo provides Echo middleware that gates routes on premium entitlement
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// EntitlementKey is the Echo context key holding the *entitlement.Entitlement
// of a request that passed RequirePremium
const EntitlementKey = "fit4seniors.entitlement"

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance
	Manager *entitlement.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnNotPremium is called when the user has no premium access
	// If nil, returns 403 with error "premium_required"
	OnNotPremium func(c echo.Context, ent *entitlement.Entitlement) error

	// OnError is called when the entitlement cannot be read
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// RequirePremium creates an Echo middleware that only lets premium users through
func RequirePremium(cfg Config) echo.MiddlewareFunc {
	if cfg.Manager == nil {
		panic("fit4seniors/echo: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("fit4seniors/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			ent, err := cfg.Manager.GetEntitlement(c.Request().Context(), userID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return defaultError(c, err)
			}

			if !ent.IsPremium {
				if cfg.OnNotPremium != nil {
					return cfg.OnNotPremium(c, ent)
				}
				return defaultNotPremium(c)
			}

			c.Set(EntitlementKey, ent)
			return next(c)
		}
	}
}

// Entitlement returns the entitlement stored by RequirePremium
func Entitlement(c echo.Context) (*entitlement.Entitlement, bool) {
	ent, ok := c.Get(EntitlementKey).(*entitlement.Entitlement)
	return ent, ok
}

// Default error handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}

func defaultNotPremium(c echo.Context) error {
	return c.JSON(http.StatusForbidden, map[string]string{"error": "premium_required"})
}

func defaultError(c echo.Context, _ error) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal_error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Echo context values
// set by an auth middleware via c.Set(key, userID)
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
