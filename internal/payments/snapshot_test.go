package payments

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kansha-backend-go/internal/models"
)

func TestSubscriptionSnapshotTranslatesFirstItem(t *testing.T) {
	raw := `{
	  "id": "sub_1",
	  "status": "active",
	  "cancel_at_period_end": true,
	  "created": 1700000000,
	  "current_period_start": 1700000000,
	  "current_period_end": 1702592000,
	  "customer": "cus_9",
	  "items": {"object": "list", "data": [
	    {"id": "si_1", "quantity": 2, "price": {"id": "price_basic", "product": "prod_fruit"}},
	    {"id": "si_2", "quantity": 1, "price": {"id": "price_other", "product": "prod_other"}}
	  ]}
	}`
	var sub stripe.Subscription
	require.NoError(t, json.Unmarshal([]byte(raw), &sub))

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := SubscriptionSnapshot(&sub, now)

	assert.Equal(t, models.Subscription{
		ID:                 "sub_1",
		Status:             "active",
		PlanID:             "price_basic",
		CurrentPeriodStart: time.Unix(1700000000, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(1702592000, 0).UTC(),
		CancelAtPeriodEnd:  true,
		CreatedAt:          time.Unix(1700000000, 0).UTC(),
		CustomerID:         "cus_9",
		Quantity:           2,
		PriceID:            "price_basic",
		ProductID:          "prod_fruit",
		LastUpdated:        now,
	}, got)
}

func TestSubscriptionSnapshotWithoutItems(t *testing.T) {
	got := SubscriptionSnapshot(&stripe.Subscription{ID: "sub_2", Status: stripe.SubscriptionStatusCanceled}, time.Now())

	assert.Equal(t, "sub_2", got.ID)
	assert.Equal(t, "canceled", got.Status)
	assert.Empty(t, got.PlanID)
	assert.Empty(t, got.CustomerID)
	assert.True(t, got.CurrentPeriodEnd.IsZero())
}
