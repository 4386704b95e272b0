package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"kansha-backend-go/internal/models"
)

func TestApplySubscriptionCheckoutWritesSnapshot(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1", Email: "a@x.com"})
	f.provider.subscriptions["sub_1"] = activeSubscription("sub_1", "cus_1", "price_basic", "u1")

	event := testEvent(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted, 1714521700, map[string]interface{}{
		"id":           "cs_1",
		"object":       "checkout.session",
		"mode":         "subscription",
		"subscription": "sub_1",
		"metadata":     map[string]string{"user_id": "u1", "plan_id": "basic"},
	})

	outcome, err := f.rec.Apply(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)

	sub := f.users.get("u1").Subscription
	require.NotNil(t, sub)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, "active", sub.Status)
	assert.Equal(t, "price_basic", sub.PlanID)
	assert.Equal(t, "price_basic", sub.PriceID)
	assert.Equal(t, "prod_basic", sub.ProductID)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, int64(1), sub.Quantity)
	assert.Equal(t, "evt_1", sub.SourceEventID)
	assert.Equal(t, int64(1714521700), sub.SourceEventAt.Unix())
	assert.False(t, sub.CurrentPeriodEnd.IsZero())
}

func TestApplyCheckoutWithoutUserIDAlertsAndWritesNothing(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1"})
	event := testEvent(t, "evt_2", stripe.EventTypeCheckoutSessionCompleted, 1714521700, map[string]interface{}{
		"id":           "cs_2",
		"object":       "checkout.session",
		"mode":         "subscription",
		"subscription": "sub_1",
		"metadata":     map[string]string{"plan_id": "basic"},
	})

	outcome, err := f.rec.Apply(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoTarget, outcome)
	assert.Equal(t, 1, f.alerter.count())
	assert.Nil(t, f.users.get("u1").Subscription)
}

func paymentCheckoutObject(sessionID, userID string) map[string]interface{} {
	return map[string]interface{}{
		"id":             sessionID,
		"object":         "checkout.session",
		"mode":           "payment",
		"amount_total":   2000,
		"currency":       "usd",
		"payment_status": "paid",
		"customer_email": "a@x.com",
		"metadata":       map[string]string{"user_id": userID, "product_id": "apple"},
	}
}

func TestApplyPaymentCheckoutRecordsPurchaseOnce(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1", Email: "a@x.com"})
	event := testEvent(t, "evt_3", stripe.EventTypeCheckoutSessionCompleted, 1714521700, paymentCheckoutObject("cs_pay", "u1"))

	outcome, err := f.rec.Apply(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)

	rec, err := f.purchases.GetBySessionID(context.Background(), "cs_pay")
	require.NoError(t, err)
	assert.Equal(t, "apple", rec.ProductID)
	assert.Equal(t, int64(2000), rec.Amount)
	assert.Equal(t, "usd", rec.Currency)
	assert.Equal(t, "paid", rec.Status)
	assert.Equal(t, "a@x.com", rec.CustomerEmail)
	assert.Equal(t, f.rec.now().UTC(), rec.PurchaseDate)

	outcome, err = f.rec.Apply(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicate, outcome)

	user := f.users.get("u1")
	assert.Len(t, user.Purchases, 1)
	assert.NotNil(t, user.LastPurchaseAt)
}

func TestApplyPaymentCheckoutForUnknownUserIsPermanent(t *testing.T) {
	f := newReconcilerFixture()
	event := testEvent(t, "evt_4", stripe.EventTypeCheckoutSessionCompleted, 1714521700, paymentCheckoutObject("cs_pay", "ghost"))

	_, err := f.rec.Apply(context.Background(), event)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestApplySubscriptionEventsDiscardOutOfOrderDelivery(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1"})
	ctx := context.Background()

	newer := testEvent(t, "evt_new", stripe.EventTypeCustomerSubscriptionDeleted, 2000, subscriptionObject("sub_1", "canceled", "u1"))
	older := testEvent(t, "evt_old", stripe.EventTypeCustomerSubscriptionUpdated, 1000, subscriptionObject("sub_1", "active", "u1"))

	outcome, err := f.rec.Apply(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)

	outcome, err = f.rec.Apply(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStale, outcome)

	sub := f.users.get("u1").Subscription
	assert.Equal(t, "canceled", sub.Status)
	assert.Equal(t, "evt_new", sub.SourceEventID)
}

func TestApplySubscriptionEventWithSameTimestampWins(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1"})
	ctx := context.Background()

	_, err := f.rec.Apply(ctx, testEvent(t, "evt_a", stripe.EventTypeCustomerSubscriptionCreated, 1000, subscriptionObject("sub_1", "incomplete", "u1")))
	require.NoError(t, err)
	outcome, err := f.rec.Apply(ctx, testEvent(t, "evt_b", stripe.EventTypeCustomerSubscriptionUpdated, 1000, subscriptionObject("sub_1", "active", "u1")))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeApplied, outcome)
	assert.Equal(t, "active", f.users.get("u1").Subscription.Status)
}

func TestApplySubscriptionEventWithoutUserID(t *testing.T) {
	f := newReconcilerFixture()
	outcome, err := f.rec.Apply(context.Background(),
		testEvent(t, "evt_5", stripe.EventTypeCustomerSubscriptionUpdated, 1000, subscriptionObject("sub_1", "active", "")))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoTarget, outcome)
	assert.Equal(t, 1, f.alerter.count())
}

func invoiceObject(subscriptionID, customerID string) map[string]interface{} {
	obj := map[string]interface{}{"id": "in_1", "object": "invoice", "customer": customerID}
	if subscriptionID != "" {
		obj["subscription"] = subscriptionID
	}
	return obj
}

func TestApplyInvoiceResolvesUserThroughCustomer(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1"})
	f.provider.subscriptions["sub_1"] = activeSubscription("sub_1", "cus_1", "price_basic", "")
	f.provider.customers["cus_1"] = &stripe.Customer{ID: "cus_1", Metadata: map[string]string{"user_id": "u1"}}

	outcome, err := f.rec.Apply(context.Background(),
		testEvent(t, "evt_inv", stripe.EventTypeInvoicePaymentSucceeded, 1000, invoiceObject("sub_1", "cus_1")))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeApplied, outcome)
	assert.Equal(t, "sub_1", f.users.get("u1").Subscription.ID)
}

func TestApplyInvoiceSkipsDeletedCustomer(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1"})
	f.provider.subscriptions["sub_1"] = activeSubscription("sub_1", "cus_1", "price_basic", "")
	f.provider.customers["cus_1"] = &stripe.Customer{ID: "cus_1", Deleted: true}

	outcome, err := f.rec.Apply(context.Background(),
		testEvent(t, "evt_inv", stripe.EventTypeInvoicePaid, 1000, invoiceObject("sub_1", "cus_1")))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, outcome)
	assert.Nil(t, f.users.get("u1").Subscription)
	assert.Zero(t, f.alerter.count())
}

func TestApplyInvoiceWithoutSubscriptionIsIgnored(t *testing.T) {
	f := newReconcilerFixture()
	outcome, err := f.rec.Apply(context.Background(),
		testEvent(t, "evt_inv", stripe.EventTypeInvoicePaid, 1000, invoiceObject("", "cus_1")))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, outcome)
}

func TestApplyProviderFailureIsRetryable(t *testing.T) {
	f := newReconcilerFixture(&models.User{ID: "u1"})
	f.provider.subErr = errors.New("stripe unavailable")

	_, err := f.rec.Apply(context.Background(),
		testEvent(t, "evt_inv", stripe.EventTypeInvoicePaid, 1000, invoiceObject("sub_1", "cus_1")))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestApplyUndecodableObjectIsPermanent(t *testing.T) {
	f := newReconcilerFixture()
	event := testEvent(t, "evt_bad", stripe.EventTypeCustomerSubscriptionUpdated, 1000,
		map[string]interface{}{"id": "sub_1", "metadata": "not-a-map"})

	_, err := f.rec.Apply(context.Background(), event)
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, ErrWebhookProcessing))
}

func TestApplyIgnoresUnhandledTypes(t *testing.T) {
	f := newReconcilerFixture()
	outcome, err := f.rec.Apply(context.Background(),
		testEvent(t, "evt_x", stripe.EventType("charge.refunded"), 1000, map[string]interface{}{"id": "ch_1"}))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, outcome)
}
