package billing

import (
	"context"

	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// Config defines the standard configuration all providers should accept
type Config struct {
	// Manager is the entitlement manager updated by webhook events (required)
	Manager *entitlement.Manager

	// WebhookSecret is the shared secret used to verify webhook signatures.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// PriceID is the provider price of the premium subscription.
	PriceID string

	// AppBaseURL is the public URL of the web app; checkout and portal
	// return URLs are built from it.
	AppBaseURL string

	// OnEntitlementChange is called after a webhook event reconciled an
	// entitlement. A returned error fails the webhook so the provider retries.
	OnEntitlementChange func(ctx context.Context, change EntitlementChange) error

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics will be silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger entitlement.Logger
}
