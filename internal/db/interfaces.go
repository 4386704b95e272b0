package db

import (
	"context"
	"errors"
	"time"

	"kansha-backend-go/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a create hits an existing document.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrStaleWrite is returned when a subscription snapshot is older than the stored one.
	ErrStaleWrite = errors.New("stale write")
)

// UserRepository defines the storage operations on users/{id}.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	TouchSignIn(ctx context.Context, userID string, at time.Time) error
	// SaveRole sets accountType, creating the document from seed when it is missing.
	SaveRole(ctx context.Context, seed *models.User, role models.Role) (*models.User, error)
	// ApplySubscription overwrites the embedded subscription unless the stored one
	// comes from a newer event. The user must exist.
	ApplySubscription(ctx context.Context, userID string, sub models.Subscription) error
}

// PurchaseRepository defines the storage operations on purchases/{sessionId}.
type PurchaseRepository interface {
	// Record writes the purchase document and appends it to the owner's list in one
	// transaction. It returns ErrAlreadyExists when the session was already recorded.
	Record(ctx context.Context, rec models.PurchaseRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.PurchaseRecord, error)
}

// WebhookEventRepository tracks provider events that have been handled.
type WebhookEventRepository interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, event models.ProcessedEvent) error
}

// DeadLetterRepository stores events that exhausted their apply attempts.
type DeadLetterRepository interface {
	Add(ctx context.Context, letter *models.DeadLetter) error
	Get(ctx context.Context, id string) (*models.DeadLetter, error)
	List(ctx context.Context, limit int) ([]*models.DeadLetter, error)
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context) (int, error)
}
