package stripe

import (
	"errors"
	"testing"
	"time"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
)

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier(testWebhookSecret, 0)
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.updated","created":1760870000,"data":{"object":{"id":"sub_1"}}}`)

	event, err := v.Verify(payload, sign(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "evt_1" || string(event.Type) != "customer.subscription.updated" {
		t.Errorf("unexpected event %s/%s", event.ID, event.Type)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		t.Error("expected raw data object")
	}
}

func TestVerifier_RejectsAlteredBytes(t *testing.T) {
	v := NewVerifier(testWebhookSecret, 0)
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	header := sign(payload, testWebhookSecret, time.Now())

	// Same JSON value, different bytes.
	reencoded := []byte(`{"id": "evt_1", "type": "customer.subscription.updated"}`)
	if _, err := v.Verify(reencoded, header); !errors.Is(err, billing.ErrInvalidWebhookSignature) {
		t.Errorf("expected ErrInvalidWebhookSignature, got %v", err)
	}
}

func TestVerifier_Errors(t *testing.T) {
	now := time.Now()
	valid := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	notJSON := []byte(`not json`)
	noID := []byte(`{"type":"invoice.paid"}`)

	tests := []struct {
		name    string
		payload []byte
		header  string
		wantErr error
	}{
		{"missing header", valid, "", billing.ErrInvalidWebhookSignature},
		{"wrong secret", valid, sign(valid, "whsec_wrong", now), billing.ErrInvalidWebhookSignature},
		{"too old", valid, sign(valid, testWebhookSecret, now.Add(-10*time.Minute)), billing.ErrInvalidWebhookSignature},
		{"signed but not json", notJSON, sign(notJSON, testWebhookSecret, now), billing.ErrInvalidWebhookPayload},
		{"signed but no id", noID, sign(noID, testWebhookSecret, now), billing.ErrInvalidWebhookPayload},
	}

	v := NewVerifier(testWebhookSecret, DefaultSignatureTolerance)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.payload, tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestVerifier_NotConfigured(t *testing.T) {
	var v *Verifier
	if _, err := v.Verify([]byte(`{}`), "t=1,v1=00"); !errors.Is(err, billing.ErrProviderNotConfigured) {
		t.Errorf("expected ErrProviderNotConfigured, got %v", err)
	}
}
