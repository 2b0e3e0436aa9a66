package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v83"
)

// API is the subset of the Stripe API the provider calls.
type API interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error)
}

// ClientAPI implements API with the stripe-go client.
type ClientAPI struct {
	client *stripe.Client
}

// NewClientAPI creates a Stripe API client for the secret key.
func NewClientAPI(apiKey string) *ClientAPI {
	return &ClientAPI{client: stripe.NewClient(apiKey)}
}

func (c *ClientAPI) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return c.client.V1Subscriptions.Retrieve(ctx, id, nil)
}

func (c *ClientAPI) CreateCustomer(
	ctx context.Context, params *stripe.CustomerCreateParams,
) (*stripe.Customer, error) {
	return c.client.V1Customers.Create(ctx, params)
}

func (c *ClientAPI) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	return c.client.V1CheckoutSessions.Create(ctx, params)
}

func (c *ClientAPI) CreatePortalSession(
	ctx context.Context, params *stripe.BillingPortalSessionCreateParams,
) (*stripe.BillingPortalSession, error) {
	return c.client.V1BillingPortalSessions.Create(ctx, params)
}
