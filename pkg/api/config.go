package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// Config holds configuration for the billing API handler
type Config struct {
	// Manager is the entitlement manager instance (required)
	Manager *entitlement.Manager

	// Billing creates checkout and portal sessions.
	// If nil, checkout and portal requests fail with 500 configuration_error.
	Billing billing.CheckoutProvider

	// Authenticator verifies bearer tokens.
	// If nil, every authenticated request fails with 500 configuration_error.
	Authenticator Authenticator

	// Logger is used for structured logging (default: NoopLogger)
	Logger entitlement.Logger

	// OnError handles errors (auth, internal, etc.)
	// If nil, writes the JSON error envelope chosen by StatusFor
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	return nil
}

// NewHandler creates a new billing API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &entitlement.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}
