package models

import "time"

// User is the profile stored at users/{id}. The document ID is the Firebase Auth UID.
type User struct {
	ID             string        `json:"id" firestore:"-"`
	Email          string        `json:"email" firestore:"email"`
	DisplayName    string        `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	Role           Role          `json:"accountType,omitempty" firestore:"accountType,omitempty"`
	CreatedAt      time.Time     `json:"createdAt" firestore:"createdAt"`
	LastSignIn     time.Time     `json:"lastSignIn" firestore:"lastSignIn"`
	Subscription   *Subscription `json:"subscription,omitempty" firestore:"subscription,omitempty"`
	Purchases      []Purchase    `json:"purchases,omitempty" firestore:"purchases,omitempty"`
	LastPurchaseAt *time.Time    `json:"lastPurchaseAt,omitempty" firestore:"lastPurchaseAt,omitempty"`
}

// HasSubscription reports whether a subscription snapshot has ever been written for the user.
func (u *User) HasSubscription() bool {
	return u != nil && u.Subscription != nil && u.Subscription.ID != ""
}
