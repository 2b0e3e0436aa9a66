package entitlement

import "context"

// Storage defines the interface for entitlement persistence.
// Implementations delegate atomicity to the underlying engine; no in-process
// locking is expected across instances.
type Storage interface {
	// GetEntitlement retrieves a user's entitlement.
	// Returns ErrEntitlementNotFound when the user has no record.
	GetEntitlement(ctx context.Context, userID string) (*Entitlement, error)

	// CreateEntitlement inserts ent only if the user has no record yet.
	// An existing record is left untouched and no error is returned.
	CreateEntitlement(ctx context.Context, ent *Entitlement) error

	// SetEntitlement upserts ent keyed by UserID. A customer id that is
	// already stored is never replaced.
	SetEntitlement(ctx context.Context, ent *Entitlement) error

	// SetCustomerID stores customerID for the user unless one is stored
	// already, creating a non-premium record if needed. Returns the customer
	// id stored after the call.
	SetCustomerID(ctx context.Context, userID, customerID string) (string, error)

	// FindUserBySubscription returns the user linked to a subscription.
	// Returns ErrEntitlementNotFound when no record references it.
	FindUserBySubscription(ctx context.Context, subscriptionID string) (string, error)

	// HasProcessedEvent reports whether a webhook event id was recorded.
	HasProcessedEvent(ctx context.Context, eventID string) (bool, error)

	// RecordProcessedEvent records a webhook event id. A uniqueness violation
	// is reported as ErrEventAlreadyRecorded.
	RecordProcessedEvent(ctx context.Context, eventID string) error

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
