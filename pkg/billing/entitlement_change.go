package billing

import "time"

// EntitlementChange describes an entitlement update applied from a webhook.
// It is passed to Config.OnEntitlementChange after storage was updated.
type EntitlementChange struct {
	// UserID is the internal user identifier
	UserID string

	// WasPremium is the premium flag before the update (false for new users)
	WasPremium bool

	// IsPremium is the premium flag after the update
	IsPremium bool

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventID is the provider event identifier
	EventID string

	// EventType is the provider-specific event type,
	// e.g. "customer.subscription.updated"
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// CurrentPeriodEnd is the end of the paid period (nil when unknown)
	CurrentPeriodEnd *time.Time
}

// Changed reports whether premium access flipped.
func (c EntitlementChange) Changed() bool {
	return c.WasPremium != c.IsPremium
}
