package stripe

import "github.com/stripe/stripe-go/v83"

// EventKind is the closed set of Stripe events that affect entitlements.
type EventKind int

const (
	// EventIgnored covers every event type without entitlement effect.
	EventIgnored EventKind = iota
	EventCheckoutCompleted
	EventSubscriptionUpdated
	EventSubscriptionDeleted
)

const (
	eventTypeCheckoutCompleted   = "checkout.session.completed"
	eventTypeSubscriptionUpdated = "customer.subscription.updated"
	eventTypeSubscriptionDeleted = "customer.subscription.deleted"
)

// ClassifyEvent maps a Stripe event type to its EventKind.
func ClassifyEvent(t stripe.EventType) EventKind {
	switch string(t) {
	case eventTypeCheckoutCompleted:
		return EventCheckoutCompleted
	case eventTypeSubscriptionUpdated:
		return EventSubscriptionUpdated
	case eventTypeSubscriptionDeleted:
		return EventSubscriptionDeleted
	default:
		return EventIgnored
	}
}

func (k EventKind) String() string {
	switch k {
	case EventCheckoutCompleted:
		return "checkout_completed"
	case EventSubscriptionUpdated:
		return "subscription_updated"
	case EventSubscriptionDeleted:
		return "subscription_deleted"
	case EventIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}
