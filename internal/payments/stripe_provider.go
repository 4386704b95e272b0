// Package payments wraps the Stripe API calls made by checkout and webhook reconciliation.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
)

// ErrProvider marks failures returned by the Stripe API.
var ErrProvider = errors.New("payment provider error")

// Provider is the subset of Stripe used by the services.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	// FindOrCreateCustomer returns the first customer with email, creating one when
	// none exists, and makes sure its metadata points at userID.
	FindOrCreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeProvider implements Provider with the stripe-go resource packages.
type StripeProvider struct{}

// NewStripeProvider sets the global API key used by stripe-go.
func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{}
}

func providerError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %s (code=%s, status=%d)", ErrProvider, op, stripeErr.Msg, stripeErr.Code, stripeErr.HTTPStatusCode)
	}
	return fmt.Errorf("%w: %s: %w", ErrProvider, op, err)
}

func (p *StripeProvider) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(id, params)
	if err != nil {
		return nil, providerError("get subscription "+id, err)
	}
	return sub, nil
}

func (p *StripeProvider) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := customer.Get(id, params)
	if err != nil {
		return nil, providerError("get customer "+id, err)
	}
	return c, nil
}

func (p *StripeProvider) FindOrCreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error) {
	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := customer.List(listParams)
	if iter.Next() {
		existing := iter.Customer()
		if existing.Metadata["user_id"] == userID {
			return existing, nil
		}
		params := &stripe.CustomerParams{}
		params.Context = ctx
		params.AddMetadata("user_id", userID)
		updated, err := customer.Update(existing.ID, params)
		if err != nil {
			return nil, providerError("update customer "+existing.ID, err)
		}
		return updated, nil
	}
	if err := iter.Err(); err != nil {
		return nil, providerError("list customers", err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	created, err := customer.New(params)
	if err != nil {
		return nil, providerError("create customer", err)
	}
	return created, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, providerError("create checkout session", err)
	}
	return s, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	s, err := portalsession.New(params)
	if err != nil {
		return "", providerError("create portal session", err)
	}
	return s.URL, nil
}
