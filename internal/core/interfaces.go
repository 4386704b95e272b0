package core

import (
	"context"

	"kansha-backend-go/internal/identity"
	"kansha-backend-go/internal/models"
)

// UserService defines the interface for user-profile operations.
type UserService interface {
	// GetOrCreate returns the stored profile for id, creating it on first sign-in.
	// The boolean reports whether it was created.
	GetOrCreate(ctx context.Context, id *identity.Identity) (*models.User, bool, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
	// SelectRole stores the onboarding choice and returns where the user should go next.
	SelectRole(ctx context.Context, id *identity.Identity, rawRole string) (*models.User, Destination, error)
}

// CheckoutService starts Stripe Checkout for catalog products and plans.
type CheckoutService interface {
	CreateProductCheckout(ctx context.Context, callerUID string, req models.ProductCheckoutRequest, origin string) (*models.CheckoutSession, error)
	CreateSubscriptionCheckout(ctx context.Context, callerUID string, req models.SubscriptionCheckoutRequest, origin string) (*models.CheckoutSession, error)
}

// BillingService covers the customer portal and webhook intake.
type BillingService interface {
	CreatePortalSession(ctx context.Context, userID, origin string) (string, error)
	// HandleStripeWebhook verifies the delivery and hands the event to the apply pipeline.
	HandleStripeWebhook(ctx context.Context, signature string, payload []byte) error
}

// DeadLetterService lets operators inspect and replay events that could not be applied.
type DeadLetterService interface {
	List(ctx context.Context, limit int) ([]*models.DeadLetter, error)
	Replay(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context) (int, error)
}

// OperatorAlerter notifies operators about events that need a human.
type OperatorAlerter interface {
	Alert(ctx context.Context, subject, body string) error
}
