package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ResolveUser determines which application user a subscription belongs to.
// The user id tag in the subscription metadata wins; otherwise the stored
// subscription link is used. An empty id with a nil error means the
// subscription is not linked yet (e.g. out-of-order delivery).
func (m *Manager) ResolveUser(ctx context.Context, sub SubscriptionRef) (string, error) {
	if userID := strings.TrimSpace(sub.Metadata[UserIDMetadataKey]); userID != "" {
		return userID, nil
	}
	if sub.ID == "" {
		return "", nil
	}

	var userID string
	err := m.timed("find_user_by_subscription", func() error {
		var e error
		userID, e = m.storage.FindUserBySubscription(ctx, sub.ID)
		return e
	})
	if errors.Is(err, ErrEntitlementNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve subscription %s: %w", sub.ID, err)
	}
	return userID, nil
}
