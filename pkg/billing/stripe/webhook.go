package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
	"github.com/mihaimyh/fit4seniors/pkg/billing/internal"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

type webhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// handleWebhook verifies, de-duplicates and dispatches a Stripe event.
//
// The event id is recorded before dispatch. A dispatch failure answers 500;
// the redelivery is then reported as a duplicate and its effect is not
// applied again.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		internal.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	if p.verifier == nil {
		p.logger.Error("stripe webhook secret not configured")
		p.metrics.RecordWebhookError(providerName, "not_configured")
		internal.WriteError(w, http.StatusInternalServerError, "configuration_error", "webhook not configured")
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
			internal.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
			return
		}
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		internal.WriteError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	event, err := p.verifier.Verify(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidWebhookSignature) {
			p.logger.Warn("stripe webhook signature rejected", entitlement.Field{Key: "error", Value: err})
			p.metrics.RecordWebhookError(providerName, "invalid_signature")
			internal.WriteError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
			return
		}
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		internal.WriteError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	ctx := r.Context()
	eventType := string(event.Type)
	done := func(status string) {
		p.metrics.RecordWebhookEvent(providerName, eventType, status)
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
	}

	seen, err := p.manager.HasProcessedEvent(ctx, event.ID)
	if err != nil {
		p.fail(w, &event, "event_log_error", err)
		done("error")
		return
	}
	if seen {
		p.writeDuplicate(w, &event)
		done("duplicate")
		return
	}

	if err := p.manager.RecordProcessedEvent(ctx, event.ID); err != nil {
		if errors.Is(err, entitlement.ErrEventAlreadyRecorded) {
			p.writeDuplicate(w, &event)
			done("duplicate")
			return
		}
		p.fail(w, &event, "event_log_error", err)
		done("error")
		return
	}

	kind := ClassifyEvent(event.Type)
	if err := p.dispatch(ctx, kind, &event); err != nil {
		if errors.Is(err, billing.ErrInvalidWebhookPayload) {
			p.logger.Warn("stripe webhook payload rejected",
				entitlement.Field{Key: "event_id", Value: event.ID},
				entitlement.Field{Key: "event_type", Value: eventType},
				entitlement.Field{Key: "error", Value: err},
			)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
			internal.WriteError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			done("error")
			return
		}
		p.fail(w, &event, "processing_error", err)
		done("error")
		return
	}

	_ = internal.WriteJSON(w, http.StatusOK, webhookResponse{Received: true})
	if kind == EventIgnored {
		done("ignored")
		return
	}
	done("success")
}

func (p *Provider) writeDuplicate(w http.ResponseWriter, event *stripe.Event) {
	p.logger.Debug("stripe webhook already processed",
		entitlement.Field{Key: "event_id", Value: event.ID},
		entitlement.Field{Key: "event_type", Value: string(event.Type)},
	)
	_ = internal.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Duplicate: true})
}

func (p *Provider) fail(w http.ResponseWriter, event *stripe.Event, errorType string, err error) {
	p.logger.Error("stripe webhook processing failed",
		entitlement.Field{Key: "event_id", Value: event.ID},
		entitlement.Field{Key: "event_type", Value: string(event.Type)},
		entitlement.Field{Key: "error", Value: err},
	)
	p.metrics.RecordWebhookError(providerName, errorType)
	internal.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to process webhook")
}

func (p *Provider) dispatch(ctx context.Context, kind EventKind, event *stripe.Event) error {
	if kind != EventIgnored && (event.Data == nil || len(event.Data.Raw) == 0) {
		return fmt.Errorf("%w: event %s has no data object", billing.ErrInvalidWebhookPayload, event.ID)
	}

	switch kind {
	case EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionUpdated:
		return p.handleSubscriptionChange(ctx, event, false)
	case EventSubscriptionDeleted:
		return p.handleSubscriptionChange(ctx, event, true)
	case EventIgnored:
		return nil
	}
	return nil
}

// handleCheckoutCompleted activates the user who completed a subscription checkout.
func (p *Provider) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: checkout session: %v", billing.ErrInvalidWebhookPayload, err)
	}

	if session.Mode != stripe.CheckoutSessionModeSubscription {
		p.logger.Debug("ignoring non-subscription checkout",
			entitlement.Field{Key: "event_id", Value: event.ID},
			entitlement.Field{Key: "session_id", Value: session.ID},
			entitlement.Field{Key: "mode", Value: string(session.Mode)},
		)
		return nil
	}

	userID := strings.TrimSpace(session.ClientReferenceID)
	if userID == "" {
		userID = strings.TrimSpace(session.Metadata[entitlement.UserIDMetadataKey])
	}
	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}

	if subscriptionID == "" || userID == "" {
		p.logger.Warn("checkout session missing subscription or user, skipping",
			entitlement.Field{Key: "event_id", Value: event.ID},
			entitlement.Field{Key: "session_id", Value: session.ID},
			entitlement.Field{Key: "subscription_id", Value: subscriptionID},
			entitlement.Field{Key: "user_id", Value: userID},
		)
		return nil
	}

	sub, err := p.retrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	customerID := customerIDOf(session.Customer)
	if customerID == "" {
		customerID = customerIDOf(sub.Customer)
	}

	return p.reconcile(ctx, event, userID, entitlement.Update{
		CustomerID:       customerID,
		SubscriptionID:   subscriptionID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: currentPeriodEnd(sub, nil),
	})
}

// handleSubscriptionChange reconciles customer.subscription.updated and
// customer.subscription.deleted events. Deletion always revokes access.
func (p *Provider) handleSubscriptionChange(ctx context.Context, event *stripe.Event, deleted bool) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	if sub.ID == "" {
		p.logger.Warn("subscription event without subscription id, skipping",
			entitlement.Field{Key: "event_id", Value: event.ID},
		)
		return nil
	}

	userID, err := p.manager.ResolveUser(ctx, entitlement.SubscriptionRef{ID: sub.ID, Metadata: sub.Metadata})
	if err != nil {
		return err
	}
	if userID == "" {
		p.logger.Warn("subscription not linked to a user, skipping",
			entitlement.Field{Key: "event_id", Value: event.ID},
			entitlement.Field{Key: "subscription_id", Value: sub.ID},
		)
		return nil
	}

	return p.reconcile(ctx, event, userID, entitlement.Update{
		CustomerID:       customerIDOf(sub.Customer),
		SubscriptionID:   sub.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: currentPeriodEnd(&sub, event.Data.Raw),
		Revoke:           deleted,
	})
}

func (p *Provider) reconcile(ctx context.Context, event *stripe.Event, userID string, update entitlement.Update) error {
	before, err := p.manager.PeekEntitlement(ctx, userID)
	if err != nil && !errors.Is(err, entitlement.ErrEntitlementNotFound) {
		return fmt.Errorf("failed to load entitlement: %w", err)
	}
	wasPremium := before != nil && before.IsPremium

	ent, err := p.manager.Reconcile(ctx, userID, update)
	if err != nil {
		return err
	}
	p.metrics.RecordPremiumChange(providerName, wasPremium, ent.IsPremium)

	if p.onChange == nil {
		return nil
	}
	change := billing.EntitlementChange{
		UserID:           userID,
		WasPremium:       wasPremium,
		IsPremium:        ent.IsPremium,
		Provider:         providerName,
		EventID:          event.ID,
		EventType:        string(event.Type),
		EventTimestamp:   time.Unix(event.Created, 0).UTC(),
		CurrentPeriodEnd: ent.CurrentPeriodEnd,
	}
	if err := p.onChange(ctx, change); err != nil {
		return fmt.Errorf("entitlement change callback: %w", err)
	}
	return nil
}

func (p *Provider) retrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	var sub *stripe.Subscription
	err := p.callAPI("subscriptions.retrieve", func() error {
		var e error
		sub, e = p.api.RetrieveSubscription(ctx, id)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription %s: %w", id, err)
	}
	return sub, nil
}

// currentPeriodEnd returns the latest item period end. Payloads from API
// versions that still carry the top-level current_period_end are read from raw.
func currentPeriodEnd(sub *stripe.Subscription, raw json.RawMessage) *time.Time {
	var end int64
	if sub != nil && sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.CurrentPeriodEnd > end {
				end = item.CurrentPeriodEnd
			}
		}
	}
	if end == 0 && len(raw) > 0 {
		var legacy struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		}
		if json.Unmarshal(raw, &legacy) == nil {
			end = legacy.CurrentPeriodEnd
		}
	}
	if end == 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}

func customerIDOf(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
