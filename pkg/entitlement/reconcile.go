package entitlement

import (
	"context"
	"errors"
	"fmt"
)

// Reconcile computes the user's new entitlement from a subscription update
// and upserts it.
//
// There is no event ordering check: a stale update delivered after a newer
// one overwrites it.
func (m *Manager) Reconcile(ctx context.Context, userID string, update Update) (*Entitlement, error) {
	if userID == "" {
		return nil, ErrInvalidEntitlement
	}

	existing, err := m.getEntitlement(ctx, userID)
	if err != nil && !errors.Is(err, ErrEntitlementNotFound) {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}

	next := apply(existing, userID, update)
	next.UpdatedAt = m.now()

	if err := m.timed("set_entitlement", func() error {
		return m.storage.SetEntitlement(ctx, next)
	}); err != nil {
		return nil, fmt.Errorf("failed to set entitlement: %w", err)
	}

	m.metrics.RecordReconcile(update.Status, next.IsPremium)
	m.logger.Info("entitlement reconciled",
		Field{"user_id", userID},
		Field{"status", update.Status},
		Field{"revoke", update.Revoke},
		Field{"is_premium", next.IsPremium},
		Field{"subscription_id", next.SubscriptionID},
	)
	return next.Clone(), nil
}

func apply(existing *Entitlement, userID string, update Update) *Entitlement {
	next := existing.Clone()
	if next == nil {
		next = &Entitlement{UserID: userID}
	}

	next.IsPremium = !update.Revoke && IsPremiumStatus(update.Status)
	if next.CustomerID == "" {
		next.CustomerID = update.CustomerID
	}
	if update.SubscriptionID != "" {
		next.SubscriptionID = update.SubscriptionID
	}
	if update.CurrentPeriodEnd != nil {
		t := update.CurrentPeriodEnd.UTC()
		next.CurrentPeriodEnd = &t
	}
	return next
}
