package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kansha-backend-go/internal/models"
)

const (
	webhookEventsCollection = "webhook_events"
	deadLettersCollection   = "webhook_dead_letters"
)

type firestoreWebhookEventRepository struct {
	client *firestore.Client
}

// NewFirestoreWebhookEventRepository creates a WebhookEventRepository backed by Firestore.
func NewFirestoreWebhookEventRepository(client *firestore.Client) WebhookEventRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for WebhookEventRepository.")
	}
	return &firestoreWebhookEventRepository{client: client}
}

func (r *firestoreWebhookEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	_, err := r.client.Collection(webhookEventsCollection).Doc(eventID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up event '%s': %w", eventID, err)
	}
	return true, nil
}

func (r *firestoreWebhookEventRepository) MarkProcessed(ctx context.Context, event models.ProcessedEvent) error {
	_, err := r.client.Collection(webhookEventsCollection).Doc(event.EventID).Set(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to mark event '%s' processed: %w", event.EventID, err)
	}
	return nil
}

type firestoreDeadLetterRepository struct {
	client *firestore.Client
}

// NewFirestoreDeadLetterRepository creates a DeadLetterRepository backed by Firestore.
func NewFirestoreDeadLetterRepository(client *firestore.Client) DeadLetterRepository {
	if client == nil {
		log.Fatal("Firestore client is not initialized for DeadLetterRepository.")
	}
	return &firestoreDeadLetterRepository{client: client}
}

// Add stores the letter, assigning an ID when it has none.
func (r *firestoreDeadLetterRepository) Add(ctx context.Context, letter *models.DeadLetter) error {
	if letter.ID == "" {
		letter.ID = uuid.NewString()
	}
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = time.Now().UTC()
	}
	_, err := r.client.Collection(deadLettersCollection).Doc(letter.ID).Set(ctx, letter)
	if err != nil {
		return fmt.Errorf("failed to store dead letter for event '%s': %w", letter.EventID, err)
	}
	return nil
}

func (r *firestoreDeadLetterRepository) Get(ctx context.Context, id string) (*models.DeadLetter, error) {
	docSnap, err := r.client.Collection(deadLettersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("dead letter '%s' not found: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dead letter '%s': %w", id, err)
	}
	return decodeDeadLetter(docSnap)
}

// List returns the newest letters first. A non-positive limit returns all of them.
func (r *firestoreDeadLetterRepository) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	q := r.client.Collection(deadLettersCollection).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	letters := []*models.DeadLetter{}
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list dead letters: %w", err)
		}
		letter, err := decodeDeadLetter(docSnap)
		if err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

func (r *firestoreDeadLetterRepository) Delete(ctx context.Context, id string) error {
	ref := r.client.Collection(deadLettersCollection).Doc(id)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("dead letter '%s' not found: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete dead letter '%s': %w", id, err)
	}
	return nil
}

// Purge removes every letter and reports how many were deleted.
func (r *firestoreDeadLetterRepository) Purge(ctx context.Context) (int, error) {
	refs, err := r.client.Collection(deadLettersCollection).DocumentRefs(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to list dead letters for purge: %w", err)
	}
	deleted := 0
	for _, ref := range refs {
		if _, err := ref.Delete(ctx); err != nil {
			return deleted, fmt.Errorf("failed to delete dead letter '%s': %w", ref.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

func decodeDeadLetter(docSnap *firestore.DocumentSnapshot) (*models.DeadLetter, error) {
	var letter models.DeadLetter
	if err := docSnap.DataTo(&letter); err != nil {
		return nil, fmt.Errorf("failed to decode dead letter '%s': %w", docSnap.Ref.ID, err)
	}
	letter.ID = docSnap.Ref.ID
	return &letter, nil
}
