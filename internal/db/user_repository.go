package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kansha-backend-go/internal/models"
)

const usersCollection = "users"

// firestoreUserRepository implements the UserRepository interface using Firestore.
type firestoreUserRepository struct {
	client *firestore.Client
}

// NewFirestoreUserRepository creates a new instance of firestoreUserRepository.
func NewFirestoreUserRepository(client *firestore.Client) UserRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for UserRepository.")
	}
	return &firestoreUserRepository{client: client}
}

func (r *firestoreUserRepository) doc(userID string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(userID)
}

// Create adds a new user document keyed by the Firebase Auth UID.
func (r *firestoreUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errors.New("user ID cannot be empty for Create operation")
	}
	_, err := r.doc(user.ID).Create(ctx, user)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("user with ID '%s': %w", user.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user with ID '%s': %w", user.ID, err)
	}
	return nil
}

// GetByID retrieves a user document from Firestore by its ID (Firebase Auth UID).
func (r *firestoreUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, errors.New("userID cannot be empty for GetByID operation")
	}
	docSnap, err := r.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("user with ID '%s' not found: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user with ID '%s': %w", userID, err)
	}
	return decodeUser(docSnap)
}

func decodeUser(docSnap *firestore.DocumentSnapshot) (*models.User, error) {
	var user models.User
	if err := docSnap.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user data for ID '%s': %w", docSnap.Ref.ID, err)
	}
	user.ID = docSnap.Ref.ID
	return &user, nil
}

// TouchSignIn records the latest sign-in time on an existing user.
func (r *firestoreUserRepository) TouchSignIn(ctx context.Context, userID string, at time.Time) error {
	_, err := r.doc(userID).Update(ctx, []firestore.Update{{Path: "lastSignIn", Value: at}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("user with ID '%s' not found: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("failed to update lastSignIn for user '%s': %w", userID, err)
	}
	return nil
}

// SaveRole stores the selected account type. A missing profile is created from seed.
func (r *firestoreUserRepository) SaveRole(ctx context.Context, seed *models.User, role models.Role) (*models.User, error) {
	if seed == nil || seed.ID == "" {
		return nil, errors.New("user ID cannot be empty for SaveRole operation")
	}
	ref := r.doc(seed.ID)
	now := time.Now().UTC()

	var saved *models.User
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docSnap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to read user '%s': %w", seed.ID, err)
		}

		if docSnap == nil || !docSnap.Exists() {
			created := *seed
			created.Role = role
			created.CreatedAt = now
			created.LastSignIn = now
			saved = &created
			return tx.Create(ref, &created)
		}

		current, err := decodeUser(docSnap)
		if err != nil {
			return err
		}
		current.Role = role
		current.LastSignIn = now
		saved = current
		return tx.Update(ref, []firestore.Update{
			{Path: "accountType", Value: string(role)},
			{Path: "lastSignIn", Value: now},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save role for user '%s': %w", seed.ID, err)
	}
	return saved, nil
}

// ApplySubscription replaces users/{id}.subscription inside a transaction.
// The write is skipped with ErrStaleWrite when the stored snapshot came from a later event.
func (r *firestoreUserRepository) ApplySubscription(ctx context.Context, userID string, sub models.Subscription) error {
	if userID == "" {
		return errors.New("userID cannot be empty for ApplySubscription operation")
	}
	ref := r.doc(userID)

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docSnap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("user with ID '%s' not found: %w", userID, ErrNotFound)
			}
			return fmt.Errorf("failed to read user '%s': %w", userID, err)
		}

		current, err := decodeUser(docSnap)
		if err != nil {
			return err
		}
		if current.Subscription != nil && current.Subscription.SourceEventAt.After(sub.SourceEventAt) {
			return fmt.Errorf("subscription '%s' for user '%s' from %s: %w",
				sub.ID, userID, sub.SourceEventAt.Format(time.RFC3339), ErrStaleWrite)
		}

		return tx.Update(ref, []firestore.Update{{Path: "subscription", Value: sub}})
	})
}
