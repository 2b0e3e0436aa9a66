package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
	"github.com/mihaimyh/fit4seniors/pkg/billing/internal"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = internal.DefaultWebhookLimit
	maxWebhookBodyBytes      = 256 * 1024
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Manager, keys, price, callback)

	// API overrides the Stripe client. When nil, a client is built from APIKey.
	API API

	// SignatureTolerance is the maximum age of a webhook signature
	// (default: 5 minutes)
	SignatureTolerance time.Duration

	// SuccessPath and CancelPath are appended to AppBaseURL for checkout
	// return URLs (defaults: /premium?checkout=success, /premium?checkout=cancel)
	SuccessPath string
	CancelPath  string

	// PortalReturnPath is appended to AppBaseURL for the billing portal
	// return URL (default: /account)
	PortalReturnPath string
}

// Provider implements billing.Provider and billing.CheckoutProvider for Stripe.
//
// Missing credentials do not fail construction: every operation that needs
// them returns billing.ErrProviderNotConfigured instead, so a misconfigured
// deployment fails closed per request.
type Provider struct {
	manager     *entitlement.Manager
	config      Config
	api         API
	verifier    *Verifier
	rateLimiter *internal.RateLimiter
	onChange    func(context.Context, billing.EntitlementChange) error
	metrics     billing.Metrics
	logger      entitlement.Logger
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	config.APIKey = strings.TrimSpace(config.APIKey)
	config.WebhookSecret = strings.TrimSpace(config.WebhookSecret)
	config.PriceID = strings.TrimSpace(config.PriceID)
	config.AppBaseURL = strings.TrimRight(strings.TrimSpace(config.AppBaseURL), "/")
	if config.SignatureTolerance <= 0 {
		config.SignatureTolerance = DefaultSignatureTolerance
	}
	if config.SuccessPath == "" {
		config.SuccessPath = "/premium?checkout=success"
	}
	if config.CancelPath == "" {
		config.CancelPath = "/premium?checkout=cancel"
	}
	if config.PortalReturnPath == "" {
		config.PortalReturnPath = "/account"
	}

	api := config.API
	if api == nil && config.APIKey != "" {
		api = NewClientAPI(config.APIKey)
	}

	var verifier *Verifier
	if config.WebhookSecret != "" {
		verifier = NewVerifier(config.WebhookSecret, config.SignatureTolerance)
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}

	return &Provider{
		manager:     config.Manager,
		config:      config,
		api:         api,
		verifier:    verifier,
		rateLimiter: internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		onChange:    config.OnEntitlementChange,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

var (
	_ billing.Provider         = (*Provider)(nil)
	_ billing.CheckoutProvider = (*Provider)(nil)
)
