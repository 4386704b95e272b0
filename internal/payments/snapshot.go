package payments

import (
	"time"

	"github.com/stripe/stripe-go/v79"

	"kansha-backend-go/internal/models"
)

// SubscriptionSnapshot translates a Stripe subscription into the stored snapshot.
// Plan, price, product and quantity come from the first subscription item.
func SubscriptionSnapshot(sub *stripe.Subscription, now time.Time) models.Subscription {
	snap := models.Subscription{
		ID:                 sub.ID,
		Status:             string(sub.Status),
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CreatedAt:          unixTime(sub.Created),
		LastUpdated:        now.UTC(),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		snap.Quantity = item.Quantity
		if item.Price != nil {
			snap.PlanID = item.Price.ID
			snap.PriceID = item.Price.ID
			if item.Price.Product != nil {
				snap.ProductID = item.Price.Product.ID
			}
		}
	}
	return snap
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
