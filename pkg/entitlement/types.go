package entitlement

import "time"

// Stripe subscription statuses that grant premium access. Every other status,
// including ones Stripe may add later, is treated as non-premium.
const (
	StatusTrialing = "trialing"
	StatusActive   = "active"
)

// UserIDMetadataKey is the metadata key used to tag Stripe objects with the
// application user they belong to.
const UserIDMetadataKey = "user_id"

// Entitlement is the persisted premium state of one application user.
type Entitlement struct {
	UserID           string     `json:"user_id"`
	IsPremium        bool       `json:"is_premium"`
	CustomerID       string     `json:"stripe_customer_id,omitempty"`
	SubscriptionID   string     `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Update carries the subscription facts a billing event reports for a user.
type Update struct {
	// CustomerID is only stored when the user has no customer yet.
	CustomerID string

	// SubscriptionID replaces the stored subscription when non-empty.
	SubscriptionID string

	// Status is the raw provider subscription status.
	Status string

	// CurrentPeriodEnd replaces the stored period end when non-nil.
	CurrentPeriodEnd *time.Time

	// Revoke forces IsPremium to false regardless of Status.
	Revoke bool
}

// SubscriptionRef identifies a subscription for user resolution.
type SubscriptionRef struct {
	ID       string
	Metadata map[string]string
}

// IsPremiumStatus reports whether a provider subscription status grants
// premium access. Only "trialing" and "active" do.
func IsPremiumStatus(status string) bool {
	switch status {
	case StatusTrialing, StatusActive:
		return true
	default:
		return false
	}
}

// Default returns the non-premium record a user starts with.
func Default(userID string, now time.Time) *Entitlement {
	return &Entitlement{
		UserID:    userID,
		IsPremium: false,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the entitlement.
func (e *Entitlement) Clone() *Entitlement {
	if e == nil {
		return nil
	}
	c := *e
	if e.CurrentPeriodEnd != nil {
		t := *e.CurrentPeriodEnd
		c.CurrentPeriodEnd = &t
	}
	return &c
}
