package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
)

var _ billing.Metrics = (*Metrics)(nil)

func TestMetrics_Webhook(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	m.RecordWebhookEvent("stripe", "checkout.session.completed", "duplicate")
	m.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	m.RecordWebhookError("stripe", "invalid_signature")
	m.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("stripe", "checkout.session.completed", "success")); got != 2 {
		t.Errorf("success events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.webhookErrorsTotal.WithLabelValues("stripe", "invalid_signature")); got != 1 {
		t.Errorf("signature errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.webhookProcessingDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestMetrics_PremiumChange(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordPremiumChange("stripe", false, true)
	m.RecordPremiumChange("stripe", true, false)
	m.RecordPremiumChange("stripe", false, true)

	if got := testutil.ToFloat64(m.premiumChangesTotal.WithLabelValues("stripe", "false", "true")); got != 2 {
		t.Errorf("upgrades = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.premiumChangesTotal.WithLabelValues("stripe", "true", "false")); got != 1 {
		t.Errorf("downgrades = %v, want 1", got)
	}
}

func TestMetrics_APICalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordAPICall("stripe", "subscriptions.retrieve", "success")
	m.RecordAPICall("stripe", "subscriptions.retrieve", "error")
	m.RecordAPICallDuration("stripe", "subscriptions.retrieve", 150*time.Millisecond)

	if got := testutil.ToFloat64(m.apiCallsTotal.WithLabelValues("stripe", "subscriptions.retrieve", "error")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.apiCallDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}
