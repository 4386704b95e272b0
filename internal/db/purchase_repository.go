package db

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kansha-backend-go/internal/models"
)

const purchasesCollection = "purchases"

type firestorePurchaseRepository struct {
	client *firestore.Client
}

// NewFirestorePurchaseRepository creates a PurchaseRepository backed by Firestore.
func NewFirestorePurchaseRepository(client *firestore.Client) PurchaseRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for PurchaseRepository.")
	}
	return &firestorePurchaseRepository{client: client}
}

// Record writes purchases/{sessionId} and appends the purchase to users/{userId}.purchases.
// Both writes commit together or not at all.
func (r *firestorePurchaseRepository) Record(ctx context.Context, rec models.PurchaseRecord) error {
	if rec.SessionID == "" || rec.UserID == "" {
		return errors.New("session ID and user ID are required to record a purchase")
	}
	purchaseRef := r.client.Collection(purchasesCollection).Doc(rec.SessionID)
	userRef := r.client.Collection(usersCollection).Doc(rec.UserID)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Get(purchaseRef)
		if err == nil && existing.Exists() {
			return fmt.Errorf("purchase for session '%s': %w", rec.SessionID, ErrAlreadyExists)
		}
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to read purchase '%s': %w", rec.SessionID, err)
		}

		if _, err := tx.Get(userRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("user with ID '%s' not found: %w", rec.UserID, ErrNotFound)
			}
			return fmt.Errorf("failed to read user '%s': %w", rec.UserID, err)
		}

		if err := tx.Create(purchaseRef, rec); err != nil {
			return err
		}
		return tx.Update(userRef, []firestore.Update{
			{Path: "purchases", Value: firestore.ArrayUnion(rec.Purchase())},
			{Path: "lastPurchaseAt", Value: firestore.ServerTimestamp},
		})
	})
}

// GetBySessionID loads a recorded purchase.
func (r *firestorePurchaseRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.PurchaseRecord, error) {
	docSnap, err := r.client.Collection(purchasesCollection).Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("purchase for session '%s' not found: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get purchase '%s': %w", sessionID, err)
	}
	var rec models.PurchaseRecord
	if err := docSnap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode purchase '%s': %w", sessionID, err)
	}
	rec.SessionID = docSnap.Ref.ID
	return &rec, nil
}
