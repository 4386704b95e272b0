package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/models"
	"kansha-backend-go/internal/payments"
)

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// IsPermanent reports whether err should skip the remaining retries.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// HandledEventTypes lists the Stripe events the reconciler acts on.
var HandledEventTypes = map[stripe.EventType]bool{
	stripe.EventTypeCheckoutSessionCompleted:    true,
	stripe.EventTypeCustomerSubscriptionCreated: true,
	stripe.EventTypeCustomerSubscriptionUpdated: true,
	stripe.EventTypeCustomerSubscriptionDeleted: true,
	stripe.EventTypeInvoicePaymentSucceeded:     true,
	stripe.EventTypeInvoicePaid:                 true,
}

// Reconciler applies verified Stripe events to the document store.
type Reconciler struct {
	users     db.UserRepository
	purchases db.PurchaseRepository
	provider  payments.Provider
	alerter   OperatorAlerter
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciler(users db.UserRepository, purchases db.PurchaseRepository, provider payments.Provider,
	alerter OperatorAlerter, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		users:     users,
		purchases: purchases,
		provider:  provider,
		alerter:   alerter,
		logger:    logger,
		now:       time.Now,
	}
}

// Apply routes event to its handler and returns the outcome recorded for it.
// Errors wrapped by permanent must not be retried.
func (r *Reconciler) Apply(ctx context.Context, event stripe.Event) (string, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return r.applyCheckoutSession(ctx, event)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		return r.applySubscriptionChange(ctx, event)
	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaid:
		return r.applyInvoice(ctx, event)
	default:
		r.logger.Debug("Unhandled Stripe event type", zap.String("eventID", event.ID), zap.String("type", string(event.Type)))
		return models.OutcomeIgnored, nil
	}
}

// noTarget logs and alerts on an event that cannot be tied to a user.
func (r *Reconciler) noTarget(ctx context.Context, event stripe.Event, object string) (string, error) {
	r.logger.Warn("Skipping Stripe event",
		zap.String("eventID", event.ID), zap.String("type", string(event.Type)), zap.String("object", object),
		zap.Error(ErrMissingUserID))
	alert(ctx, r.alerter, r.logger, "webhook event without user_id",
		fmt.Sprintf("Event %s (%s) for %s carries no user_id metadata and was not applied.", event.ID, event.Type, object))
	return models.OutcomeNoTarget, nil
}

func decodeFailure(err error) error {
	return permanent(fmt.Errorf("%w: %w", ErrWebhookProcessing, err))
}

func (r *Reconciler) applyCheckoutSession(ctx context.Context, event stripe.Event) (string, error) {
	session, err := payments.CheckoutSessionFrom(event)
	if err != nil {
		return "", decodeFailure(err)
	}

	userID := session.Metadata["user_id"]
	if userID == "" {
		return r.noTarget(ctx, event, session.ID)
	}

	switch session.Mode {
	case stripe.CheckoutSessionModeSubscription:
		if session.Metadata["plan_id"] == "" || session.Subscription == nil || session.Subscription.ID == "" {
			r.logger.Info("Subscription checkout without plan or subscription, skipping", zap.String("sessionID", session.ID))
			return models.OutcomeIgnored, nil
		}
		sub, err := r.provider.GetSubscription(ctx, session.Subscription.ID)
		if err != nil {
			return "", err
		}
		return r.applySnapshot(ctx, event, userID, sub)

	case stripe.CheckoutSessionModePayment:
		productID := session.Metadata["product_id"]
		if productID == "" {
			r.logger.Info("Payment checkout without product_id, skipping", zap.String("sessionID", session.ID))
			return models.OutcomeIgnored, nil
		}
		return r.recordPurchase(ctx, event, session, userID, productID)

	default:
		return models.OutcomeIgnored, nil
	}
}

func (r *Reconciler) recordPurchase(ctx context.Context, event stripe.Event, session *stripe.CheckoutSession, userID, productID string) (string, error) {
	email := session.CustomerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		email = session.CustomerDetails.Email
	}

	rec := models.PurchaseRecord{
		SessionID:     session.ID,
		ProductID:     productID,
		Amount:        session.AmountTotal,
		Currency:      string(session.Currency),
		Status:        string(session.PaymentStatus),
		PurchaseDate:  r.now().UTC(),
		UserID:        userID,
		CustomerEmail: email,
	}

	err := r.purchases.Record(ctx, rec)
	switch {
	case err == nil:
		r.logger.Info("Recorded purchase",
			zap.String("eventID", event.ID), zap.String("sessionID", session.ID), zap.String("userID", userID))
		return models.OutcomeApplied, nil
	case errors.Is(err, db.ErrAlreadyExists):
		r.logger.Info("Purchase already recorded", zap.String("sessionID", session.ID))
		return models.OutcomeDuplicate, nil
	case errors.Is(err, db.ErrNotFound):
		return "", permanent(fmt.Errorf("%w: purchase %s for user '%s'", ErrUserNotFound, session.ID, userID))
	default:
		return "", err
	}
}

func (r *Reconciler) applySubscriptionChange(ctx context.Context, event stripe.Event) (string, error) {
	sub, err := payments.SubscriptionFrom(event)
	if err != nil {
		return "", decodeFailure(err)
	}
	userID := sub.Metadata["user_id"]
	if userID == "" {
		return r.noTarget(ctx, event, sub.ID)
	}
	return r.applySnapshot(ctx, event, userID, sub)
}

func (r *Reconciler) applyInvoice(ctx context.Context, event stripe.Event) (string, error) {
	inv, err := payments.InvoiceFrom(event)
	if err != nil {
		return "", decodeFailure(err)
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return models.OutcomeIgnored, nil
	}

	sub, err := r.provider.GetSubscription(ctx, inv.Subscription.ID)
	if err != nil {
		return "", err
	}

	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	} else if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	if customerID == "" {
		return r.noTarget(ctx, event, inv.ID)
	}

	cust, err := r.provider.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if cust.Deleted {
		r.logger.Info("Invoice customer was deleted, skipping", zap.String("customerID", customerID))
		return models.OutcomeIgnored, nil
	}

	userID := cust.Metadata["user_id"]
	if userID == "" {
		return r.noTarget(ctx, event, customerID)
	}
	return r.applySnapshot(ctx, event, userID, sub)
}

// applySnapshot writes the subscription unless a newer event already has.
func (r *Reconciler) applySnapshot(ctx context.Context, event stripe.Event, userID string, sub *stripe.Subscription) (string, error) {
	snap := payments.SubscriptionSnapshot(sub, r.now())
	snap.SourceEventID = event.ID
	snap.SourceEventAt = time.Unix(event.Created, 0).UTC()

	err := r.users.ApplySubscription(ctx, userID, snap)
	switch {
	case err == nil:
		r.logger.Info("Applied subscription snapshot",
			zap.String("eventID", event.ID), zap.String("userID", userID),
			zap.String("subscriptionID", snap.ID), zap.String("status", snap.Status))
		return models.OutcomeApplied, nil
	case errors.Is(err, db.ErrStaleWrite):
		r.logger.Info("Discarded out-of-order subscription event",
			zap.String("eventID", event.ID), zap.String("userID", userID), zap.String("subscriptionID", snap.ID))
		return models.OutcomeStale, nil
	case errors.Is(err, db.ErrNotFound):
		return "", permanent(fmt.Errorf("%w: subscription %s for user '%s'", ErrUserNotFound, snap.ID, userID))
	default:
		return "", err
	}
}
