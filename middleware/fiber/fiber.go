// Package fiber provides Fiber middleware that gates routes on premium entitlement
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// EntitlementKey is the Fiber locals key holding the *entitlement.Entitlement
// of a request that passed RequirePremium
const EntitlementKey = "fit4seniors.entitlement"

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Manager is the entitlement manager instance
	Manager *entitlement.Manager

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnNotPremium is called when the user has no premium access
	// If nil, returns 403 with error "premium_required"
	OnNotPremium func(c *fiber.Ctx, ent *entitlement.Entitlement) error

	// OnError is called when the entitlement cannot be read
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// RequirePremium creates a Fiber middleware that only lets premium users through
func RequirePremium(cfg Config) fiber.Handler {
	if cfg.Manager == nil {
		panic("fit4seniors/fiber: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("fit4seniors/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return defaultUnauthorized(c)
		}

		// Fiber reuses its context; UserContext carries request-scoped values
		ent, err := cfg.Manager.GetEntitlement(c.UserContext(), userID)
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

		c.Locals(EntitlementKey, ent)
		return c.Next()
	}
}

// Entitlement returns the entitlement stored by RequirePremium
func Entitlement(c *fiber.Ctx) (*entitlement.Entitlement, bool) {
	ent, ok := c.Locals(EntitlementKey).(*entitlement.Entitlement)
	return ent, ok
}

// Default error handlers

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}

func defaultNotPremium(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "premium_required"})
}

func defaultError(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Fiber locals
// set by an auth middleware via c.Locals(key, userID)
func FromContext(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if str, ok := c.Locals(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
// Fiber v2 uses c.Get() for headers (not c.GetHeader())
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}
