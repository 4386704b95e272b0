package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/models"
	"kansha-backend-go/internal/payments"
	"kansha-backend-go/pkg/cache"
)

const eventClaimPrefix = "stripe:event:"

// WebhookIntakeConfig groups the settings of the webhook entry point.
type WebhookIntakeConfig struct {
	// DedupTTL is how long a delivered event ID stays claimed in the cache.
	DedupTTL time.Duration
}

// billingService implements BillingService.
type billingService struct {
	users      db.UserRepository
	provider   payments.Provider
	verifier   *payments.WebhookVerifier
	claims     cache.Cache
	dispatcher EventDispatcher
	cfg        WebhookIntakeConfig
	clientURL  string
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewBillingService wires the portal and webhook intake.
func NewBillingService(users db.UserRepository, provider payments.Provider, verifier *payments.WebhookVerifier,
	claims cache.Cache, dispatcher EventDispatcher, cfg WebhookIntakeConfig, clientURL string,
	m *metrics.Metrics, logger *zap.Logger) BillingService {
	return &billingService{
		users:      users,
		provider:   provider,
		verifier:   verifier,
		claims:     claims,
		dispatcher: dispatcher,
		cfg:        cfg,
		clientURL:  strings.TrimRight(clientURL, "/"),
		metrics:    m,
		logger:     logger,
	}
}

// CreatePortalSession opens the Stripe customer portal for the customer on the stored subscription.
func (s *billingService) CreatePortalSession(ctx context.Context, userID, origin string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("%w: user with ID '%s'", ErrUserNotFound, userID)
		}
		return "", err
	}
	if !user.HasSubscription() || user.Subscription.CustomerID == "" {
		return "", ErrUserStripeNotLinked
	}

	returnURL := s.clientURL + string(DestinationUserProfile)
	portalURL, err := s.provider.CreatePortalSession(ctx, user.Subscription.CustomerID, returnURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStripeClient, err)
	}
	return portalURL, nil
}

// HandleStripeWebhook verifies the delivery, drops duplicates and event types that are not
// handled, and dispatches the rest. A nil return means the event may be acknowledged.
func (s *billingService) HandleStripeWebhook(ctx context.Context, signature string, payload []byte) error {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrMissingSecret) {
			s.metrics.Rejected("missing_secret")
			return ErrWebhookSecretMissing
		}
		s.metrics.Rejected("signature")
		return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	s.metrics.WebhookReceived.WithLabelValues(string(event.Type)).Inc()
	log := s.logger.With(zap.String("eventID", event.ID), zap.String("type", string(event.Type)))

	if !HandledEventTypes[event.Type] {
		log.Debug("Ignoring Stripe event type")
		s.metrics.Outcome(models.OutcomeIgnored)
		return nil
	}

	claimed, err := s.claims.SetIfAbsent(ctx, eventClaimPrefix+event.ID, time.Now().UTC().Unix(), s.cfg.DedupTTL)
	if err != nil {
		log.Warn("Event claim cache unavailable, relying on processed-event store", zap.Error(err))
		claimed = true
	}
	if !claimed {
		log.Info("Duplicate Stripe delivery")
		s.metrics.Outcome(models.OutcomeDuplicate)
		return nil
	}

	job := models.WebhookJob{
		EventID:    event.ID,
		EventType:  string(event.Type),
		Created:    event.Created,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		if releaseErr := s.claims.Delete(ctx, eventClaimPrefix+event.ID); releaseErr != nil {
			log.Warn("Failed to release event claim", zap.Error(releaseErr))
		}
		return fmt.Errorf("%w: %w", ErrWebhookEnqueue, err)
	}
	log.Info("Stripe event accepted")
	return nil
}
