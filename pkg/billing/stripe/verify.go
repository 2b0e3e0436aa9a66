package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
)

// DefaultSignatureTolerance is the maximum accepted age of a signed payload.
const DefaultSignatureTolerance = webhook.DefaultTolerance

// Verifier checks Stripe-Signature headers against the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a verifier for the webhook endpoint secret (whsec_...).
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify validates the signature over the exact request bytes and decodes
// the event. The payload must not be re-encoded before calling Verify.
func (v *Verifier) Verify(payload []byte, header string) (stripe.Event, error) {
	var event stripe.Event
	if v == nil || v.secret == "" {
		return event, billing.ErrProviderNotConfigured
	}
	if strings.TrimSpace(header) == "" {
		return event, fmt.Errorf("%w: missing Stripe-Signature header", billing.ErrInvalidWebhookSignature)
	}

	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		return event, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookSignature, err)
	}

	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("%w: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if event.ID == "" || event.Type == "" {
		return event, fmt.Errorf("%w: event id and type are required", billing.ErrInvalidWebhookPayload)
	}
	return event, nil
}
