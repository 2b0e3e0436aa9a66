package billing

import (
	"context"
	"net/http"
)

// Provider is the generic interface a payment backend implements to keep
// entitlements in sync.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles signature verification, de-duplication and
	// entitlement reconciliation internally.
	WebhookHandler() http.Handler
}

// CheckoutProvider creates hosted payment pages for authenticated users.
type CheckoutProvider interface {
	// CheckoutURL returns the URL of a subscription checkout page for the user,
	// provisioning a provider customer first when the user has none.
	CheckoutURL(ctx context.Context, userID, email string) (string, error)

	// PortalURL returns the URL of the self-service subscription portal.
	// Returns ErrCustomerNotFound when the user never checked out.
	PortalURL(ctx context.Context, userID string) (string, error)
}
