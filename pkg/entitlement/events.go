package entitlement

import (
	"context"
	"errors"
	"fmt"
)

// HasProcessedEvent reports whether a webhook event id was already recorded.
func (m *Manager) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrInvalidEventID
	}
	var seen bool
	err := m.timed("has_processed_event", func() error {
		var e error
		seen, e = m.storage.HasProcessedEvent(ctx, eventID)
		return e
	})
	if err != nil {
		return false, fmt.Errorf("failed to check event log: %w", err)
	}
	if seen {
		m.metrics.RecordDuplicateEvent()
	}
	return seen, nil
}

// RecordProcessedEvent inserts the event id into the event log. The insert is
// the de-duplication gate: when a concurrent delivery already recorded the
// same id, ErrEventAlreadyRecorded is returned and the caller must not apply
// the event's effects.
func (m *Manager) RecordProcessedEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return ErrInvalidEventID
	}
	err := m.timed("record_processed_event", func() error {
		return m.storage.RecordProcessedEvent(ctx, eventID)
	})
	if errors.Is(err, ErrEventAlreadyRecorded) {
		m.metrics.RecordDuplicateEvent()
		return ErrEventAlreadyRecorded
	}
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}
