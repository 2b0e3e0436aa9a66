// Package gin provides Gin middleware that gates routes on premium entitlement
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// EntitlementKey is the Gin context key holding the *entitlement.Entitlement
// of a request that passed RequirePremium
const EntitlementKey = "fit4seniors.entitlement"

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance
	Manager *entitlement.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnNotPremium is called when the user has no premium access
	// If nil, returns 403 with error "premium_required"
	OnNotPremium func(c *gongin.Context, ent *entitlement.Entitlement)

	// OnError is called when the entitlement cannot be read
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// RequirePremium creates a Gin middleware that only lets premium users through
func RequirePremium(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Manager == nil {
		panic("fit4seniors/gin: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("fit4seniors/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				defaultUnauthorized(c)
			}
			c.Abort()
			return
		}

		ent, err := cfg.Manager.GetEntitlement(c.Request.Context(), userID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				defaultError(c, err)
			}
			c.Abort()
			return
		}

		if !ent.IsPremium {
			if cfg.OnNotPremium != nil {
				cfg.OnNotPremium(c, ent)
			} else {
				defaultNotPremium(c)
			}
			c.Abort()
			return
		}

		c.Set(EntitlementKey, ent)
		c.Next()
	}
}

// Entitlement returns the entitlement stored by RequirePremium
func Entitlement(c *gongin.Context) (*entitlement.Entitlement, bool) {
	val, exists := c.Get(EntitlementKey)
	if !exists {
		return nil, false
	}
	ent, ok := val.(*entitlement.Entitlement)
	return ent, ok
}

// Default error handlers

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
}

func defaultNotPremium(c *gongin.Context) {
	c.JSON(http.StatusForbidden, gongin.H{"error": "premium_required"})
}

func defaultError(c *gongin.Context, _ error) {
	c.JSON(http.StatusInternalServerError, gongin.H{"error": "internal_error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Gin context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("UserID", "...") or similar.
//
// Example:
//
//	// In your auth middleware:
//	c.Set("UserID", userID)
//
//	// In premium middleware config:
//	GetUserID: gin.FromContext("UserID")
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}
