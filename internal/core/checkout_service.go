package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"kansha-backend-go/configs"
	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/models"
	"kansha-backend-go/internal/payments"
)

type checkoutService struct {
	users     db.UserRepository
	provider  payments.Provider
	catalog   *configs.Catalog
	clientURL string
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewCheckoutService creates a CheckoutService. clientURL is the front-end base used for redirects.
func NewCheckoutService(users db.UserRepository, provider payments.Provider, catalog *configs.Catalog,
	clientURL string, m *metrics.Metrics, logger *zap.Logger) CheckoutService {
	return &checkoutService{
		users:     users,
		provider:  provider,
		catalog:   catalog,
		clientURL: strings.TrimRight(clientURL, "/"),
		metrics:   m,
		logger:    logger,
	}
}

// redirectBase only trusts an Origin header that names the configured client.
func (s *checkoutService) redirectBase(origin string) string {
	origin = strings.TrimRight(origin, "/")
	if origin != "" && strings.EqualFold(origin, s.clientURL) {
		return origin
	}
	return s.clientURL
}

// loadBuyer checks that the caller is buying for themselves and that the stored profile
// carries the e-mail the browser sent.
func (s *checkoutService) loadBuyer(ctx context.Context, callerUID, userID, email string) (*models.User, error) {
	if callerUID != userID {
		return nil, ErrIdentityMismatch
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("failed to load user '%s' for checkout: %w", userID, err)
	}
	if user.Email != email {
		return nil, ErrEmailMismatch
	}
	return user, nil
}

func displayName(productID string) string {
	if productID == "" {
		return productID
	}
	return strings.ToUpper(productID[:1]) + productID[1:]
}

func (s *checkoutService) CreateProductCheckout(ctx context.Context, callerUID string, req models.ProductCheckoutRequest, origin string) (*models.CheckoutSession, error) {
	if req.ProductID == "" || req.Email == "" || req.UserID == "" || req.Quantity < 0 {
		return nil, ErrInvalidCheckoutRequest
	}
	product, ok := s.catalog.Product(req.ProductID)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProduct, req.ProductID)
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	user, err := s.loadBuyer(ctx, callerUID, req.UserID, req.Email)
	if err != nil {
		return nil, err
	}

	base := s.redirectBase(origin)
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(s.catalog.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(displayName(req.ProductID)),
				},
				UnitAmount: stripe.Int64(product.Amount),
			},
			Quantity: stripe.Int64(quantity),
		}},
		CustomerEmail: stripe.String(user.Email),
		SuccessURL: stripe.String(fmt.Sprintf("%s/success?product=%s&price=%s", base,
			url.QueryEscape(req.ProductID), url.QueryEscape(fmt.Sprintf("%.2f", float64(product.Amount)/100)))),
		CancelURL: stripe.String(base + "/cancel"),
	}
	params.AddMetadata("user_id", user.ID)
	params.AddMetadata("product_id", req.ProductID)

	session, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStripeClient, err)
	}

	s.metrics.CheckoutSessions.WithLabelValues("product").Inc()
	s.logger.Info("Created product checkout session",
		zap.String("sessionID", session.ID), zap.String("userID", user.ID), zap.String("productID", req.ProductID))
	return &models.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (s *checkoutService) CreateSubscriptionCheckout(ctx context.Context, callerUID string, req models.SubscriptionCheckoutRequest, origin string) (*models.CheckoutSession, error) {
	if req.PlanID == "" || req.Email == "" || req.UserID == "" {
		return nil, ErrInvalidCheckoutRequest
	}
	plan, ok := s.catalog.Plan(req.PlanID)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPlan, req.PlanID)
	}

	user, err := s.loadBuyer(ctx, callerUID, req.UserID, req.Email)
	if err != nil {
		return nil, err
	}

	cust, err := s.provider.FindOrCreateCustomer(ctx, user.Email, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStripeClient, err)
	}

	base := s.redirectBase(origin)
	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(cust.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(plan.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(fmt.Sprintf("%s/success?plan=%s", base, url.QueryEscape(req.PlanID))),
		CancelURL:  stripe.String(base + "/cancel"),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": user.ID},
		},
	}
	params.AddMetadata("user_id", user.ID)
	params.AddMetadata("plan_id", req.PlanID)
	if user.HasSubscription() {
		params.PaymentMethodCollection = stripe.String(string(stripe.CheckoutSessionPaymentMethodCollectionAlways))
	}

	session, err := s.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStripeClient, err)
	}

	s.metrics.CheckoutSessions.WithLabelValues("subscription").Inc()
	s.logger.Info("Created subscription checkout session",
		zap.String("sessionID", session.ID), zap.String("userID", user.ID), zap.String("planID", req.PlanID))
	return &models.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}
