package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fit4seniors/pkg/billing"
	"github.com/mihaimyh/fit4seniors/pkg/entitlement"
)

// CheckoutURL creates a subscription Checkout Session for the user and
// returns its URL.
//
// A Stripe customer is created and linked first when the user has none.
// Customer creation and its persistence are not atomic: if persisting fails
// the remote customer is orphaned and a new one is created on the next try.
func (p *Provider) CheckoutURL(ctx context.Context, userID, email string) (string, error) {
	if p.api == nil || p.config.PriceID == "" || p.config.AppBaseURL == "" {
		return "", billing.ErrProviderNotConfigured
	}

	ent, err := p.manager.GetEntitlement(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load entitlement: %w", err)
	}

	customerID := ent.CustomerID
	if customerID == "" {
		customerID, err = p.provisionCustomer(ctx, userID, email)
		if err != nil {
			return "", err
		}
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.config.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(p.config.AppBaseURL + p.config.SuccessPath),
		CancelURL:         stripe.String(p.config.AppBaseURL + p.config.CancelPath),
	}
	params.AddMetadata(entitlement.UserIDMetadataKey, userID)

	// Subscription events resolve the user from this tag without a lookup.
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(entitlement.UserIDMetadataKey, userID)

	var session *stripe.CheckoutSession
	err = p.callAPI("checkout.sessions.create", func() error {
		var e error
		session, e = p.api.CreateCheckoutSession(ctx, params)
		return e
	})
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

// PortalURL creates a Billing Portal session so the user can manage or
// cancel the subscription.
func (p *Provider) PortalURL(ctx context.Context, userID string) (string, error) {
	if p.api == nil || p.config.AppBaseURL == "" {
		return "", billing.ErrProviderNotConfigured
	}

	ent, err := p.manager.GetEntitlement(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load entitlement: %w", err)
	}
	if ent.CustomerID == "" {
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, userID)
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(ent.CustomerID),
		ReturnURL: stripe.String(p.config.AppBaseURL + p.config.PortalReturnPath),
	}

	var session *stripe.BillingPortalSession
	err = p.callAPI("billing_portal.sessions.create", func() error {
		var e error
		session, e = p.api.CreatePortalSession(ctx, params)
		return e
	})
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return session.URL, nil
}

func (p *Provider) provisionCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerCreateParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(entitlement.UserIDMetadataKey, userID)

	var customer *stripe.Customer
	err := p.callAPI("customers.create", func() error {
		var e error
		customer, e = p.api.CreateCustomer(ctx, params)
		return e
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	stored, err := p.manager.SetCustomerID(ctx, userID, customer.ID)
	if err != nil {
		p.logger.Error("stripe customer created but not persisted",
			entitlement.Field{Key: "user_id", Value: userID},
			entitlement.Field{Key: "customer_id", Value: customer.ID},
			entitlement.Field{Key: "error", Value: err},
		)
		return "", err
	}
	return stored, nil
}

// callAPI runs a Stripe call with metrics and wraps failures in
// billing.ErrProviderAPIError.
func (p *Provider) callAPI(endpoint string, fn func() error) error {
	if p.api == nil {
		return billing.ErrProviderNotConfigured
	}
	start := time.Now()
	err := fn()
	p.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, endpoint, "error")
		return fmt.Errorf("%w: %s: %v", billing.ErrProviderAPIError, endpoint, err)
	}
	p.metrics.RecordAPICall(providerName, endpoint, "success")
	return nil
}
