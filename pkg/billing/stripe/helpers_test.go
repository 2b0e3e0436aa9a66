package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
	"github.com/mihaimyh/fit4seniors/storage/memory"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testAPIKey        = "sk_test_123"
	testPriceID       = "price_premium_monthly"
	testAppBaseURL    = "https://app.fit4seniors.test"
	testUserID        = "u1"
	testCustomerID    = "cus_1"
	testSubID         = "sub_1"
	testPeriodEnd     = int64(1793000000)
)

// fakeAPI records Stripe calls and serves canned subscriptions.
type fakeAPI struct {
	mu sync.Mutex

	subscriptions map[string]*stripe.Subscription
	retrieveErr   error
	customerErr   error
	sessionErr    error

	retrieveCalls int
	customers     []*stripe.CustomerCreateParams
	sessions      []*stripe.CheckoutSessionCreateParams
	portals       []*stripe.BillingPortalSessionCreateParams
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{subscriptions: make(map[string]*stripe.Subscription)}
}

func (f *fakeAPI) RetrieveSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveCalls++
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func (f *fakeAPI) CreateCustomer(_ context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	f.customers = append(f.customers, params)
	return &stripe.Customer{ID: fmt.Sprintf("cus_new_%d", len(f.customers))}, nil
}

func (f *fakeAPI) CreateCheckoutSession(
	_ context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	f.sessions = append(f.sessions, params)
	return &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (f *fakeAPI) CreatePortalSession(
	_ context.Context, params *stripe.BillingPortalSessionCreateParams,
) (*stripe.BillingPortalSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portals = append(f.portals, params)
	return &stripe.BillingPortalSession{ID: "bps_1", URL: "https://billing.stripe.test/bps_1"}, nil
}

func (f *fakeAPI) addSubscription(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[id] = &stripe.Subscription{
		ID:       id,
		Status:   stripe.SubscriptionStatus(status),
		Customer: &stripe.Customer{ID: testCustomerID},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{ID: "si_1", CurrentPeriodEnd: testPeriodEnd}},
		},
	}
}

type testEnv struct {
	provider *Provider
	api      *fakeAPI
	manager  *entitlement.Manager
	storage  *memory.Storage
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	storage := memory.New()
	manager, err := entitlement.NewManager(storage, entitlement.Config{})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	api := newFakeAPI()
	config := Config{
		Config: billing.Config{
			Manager:       manager,
			APIKey:        testAPIKey,
			WebhookSecret: testWebhookSecret,
			PriceID:       testPriceID,
			AppBaseURL:    testAppBaseURL,
		},
		API: api,
	}
	if mutate != nil {
		mutate(&config)
	}
	provider, err := NewProvider(config)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return &testEnv{provider: provider, api: api, manager: manager, storage: storage}
}

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts.Unix())))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(t *testing.T, id, eventType string, object interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": 1760870000,
		"data":    map[string]interface{}{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func (e *testEnv) deliver(t *testing.T, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	return e.deliverSigned(t, payload, sign(payload, testWebhookSecret, time.Now()))
}

func (e *testEnv) deliverSigned(t *testing.T, payload []byte, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	e.provider.WebhookHandler().ServeHTTP(rec, req)
	return rec
}

func decodeWebhookResponse(t *testing.T, rec *httptest.ResponseRecorder) webhookResponse {
	t.Helper()
	var resp webhookResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func checkoutSession(mode, clientReferenceID, subscriptionID string) map[string]interface{} {
	session := map[string]interface{}{
		"id":       "cs_test_1",
		"object":   "checkout.session",
		"mode":     mode,
		"customer": testCustomerID,
	}
	if clientReferenceID != "" {
		session["client_reference_id"] = clientReferenceID
	}
	if subscriptionID != "" {
		session["subscription"] = subscriptionID
	}
	return session
}

func subscriptionObject(id, status string, metadata map[string]string) map[string]interface{} {
	sub := map[string]interface{}{
		"id":       id,
		"object":   "subscription",
		"status":   status,
		"customer": testCustomerID,
		"items": map[string]interface{}{
			"object": "list",
			"data": []interface{}{
				map[string]interface{}{"id": "si_1", "object": "subscription_item", "current_period_end": testPeriodEnd},
			},
		},
	}
	if metadata != nil {
		sub["metadata"] = metadata
	}
	return sub
}
