package models

import "time"

// Subscription is the snapshot of a Stripe subscription embedded in users/{id}.
// Every write replaces the whole snapshot.
type Subscription struct {
	ID                 string    `json:"id" firestore:"id"`
	Status             string    `json:"status" firestore:"status"`
	PlanID             string    `json:"planId" firestore:"planId"`
	CurrentPeriodStart time.Time `json:"currentPeriodStart" firestore:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time `json:"currentPeriodEnd" firestore:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool      `json:"cancelAtPeriodEnd" firestore:"cancelAtPeriodEnd"`
	CreatedAt          time.Time `json:"createdAt" firestore:"createdAt"`
	CustomerID         string    `json:"customerId" firestore:"customerId"`
	Quantity           int64     `json:"quantity" firestore:"quantity"`
	PriceID            string    `json:"priceId" firestore:"priceId"`
	ProductID          string    `json:"productId" firestore:"productId"`
	LastUpdated        time.Time `json:"lastUpdated" firestore:"lastUpdated"`

	// Provenance of the snapshot, used to discard out-of-order deliveries.
	SourceEventID string    `json:"-" firestore:"sourceEventId,omitempty"`
	SourceEventAt time.Time `json:"-" firestore:"sourceEventAt,omitempty"`
}

// Purchase is a completed one-time checkout as appended to users/{id}.purchases.
type Purchase struct {
	ProductID    string    `json:"productId" firestore:"productId"`
	Amount       int64     `json:"amount" firestore:"amount"`
	Currency     string    `json:"currency" firestore:"currency"`
	Status       string    `json:"status" firestore:"status"`
	PurchaseDate time.Time `json:"purchaseDate" firestore:"purchaseDate"`
}

// PurchaseRecord is the standalone copy stored at purchases/{checkoutSessionId}.
type PurchaseRecord struct {
	SessionID     string    `json:"sessionId" firestore:"-"`
	ProductID     string    `json:"productId" firestore:"productId"`
	Amount        int64     `json:"amount" firestore:"amount"`
	Currency      string    `json:"currency" firestore:"currency"`
	Status        string    `json:"status" firestore:"status"`
	PurchaseDate  time.Time `json:"purchaseDate" firestore:"purchaseDate"`
	UserID        string    `json:"userId" firestore:"userId"`
	CustomerEmail string    `json:"customerEmail" firestore:"customerEmail"`
	CreatedAt     time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

// Purchase returns the list entry written alongside the record.
func (r PurchaseRecord) Purchase() Purchase {
	return Purchase{
		ProductID:    r.ProductID,
		Amount:       r.Amount,
		Currency:     r.Currency,
		Status:       r.Status,
		PurchaseDate: r.PurchaseDate,
	}
}

// CheckoutSession is what the checkout endpoints hand back to the browser.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
