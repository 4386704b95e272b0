package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/models"
	"kansha-backend-go/internal/payments"
	"kansha-backend-go/pkg/messagequeue"
)

// RetryPolicy controls how often an event is applied before it is dead-lettered.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFraction    float64
}

// DefaultRetryPolicy returns a policy of five attempts starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.JitterFraction > 0 {
		d += d * p.JitterFraction * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// EventDispatcher hands a verified event to the apply pipeline.
type EventDispatcher interface {
	Dispatch(ctx context.Context, job models.WebhookJob) error
}

// QueueDispatcher publishes jobs for the worker to consume.
type QueueDispatcher struct {
	Queue     messagequeue.MessageQueue
	QueueName string
}

func (d QueueDispatcher) Dispatch(ctx context.Context, job models.WebhookJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job for event %s: %w", job.EventID, err)
	}
	return d.Queue.Publish(ctx, d.QueueName, body)
}

// WebhookWorker applies queued events with retries and dead-letters the ones that keep failing.
type WebhookWorker struct {
	reconciler  *Reconciler
	events      db.WebhookEventRepository
	deadLetters db.DeadLetterRepository
	policy      RetryPolicy
	alerter     OperatorAlerter
	metrics     *metrics.Metrics
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewWebhookWorker(reconciler *Reconciler, events db.WebhookEventRepository, deadLetters db.DeadLetterRepository,
	policy RetryPolicy, alerter OperatorAlerter, m *metrics.Metrics, logger *zap.Logger) *WebhookWorker {
	return &WebhookWorker{
		reconciler:  reconciler,
		events:      events,
		deadLetters: deadLetters,
		policy:      policy,
		alerter:     alerter,
		metrics:     m,
		logger:      logger,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch applies the job inline. It is the synchronous alternative to QueueDispatcher
// and keeps running after the HTTP request that delivered the event returns.
func (w *WebhookWorker) Dispatch(ctx context.Context, job models.WebhookJob) error {
	return w.Process(context.WithoutCancel(ctx), job)
}

// Run consumes jobs from queueName until ctx is cancelled.
func (w *WebhookWorker) Run(ctx context.Context, queue messagequeue.MessageQueue, queueName string) error {
	w.logger.Info("Webhook worker started", zap.String("queue", queueName))
	err := queue.Consume(ctx, queueName, w.HandleMessage)
	w.logger.Info("Webhook worker stopped", zap.String("queue", queueName))
	return err
}

// HandleMessage decodes one queue message and processes it. Returning an error requeues the message.
func (w *WebhookWorker) HandleMessage(ctx context.Context, body []byte) error {
	var job models.WebhookJob
	if err := json.Unmarshal(body, &job); err != nil || job.EventID == "" {
		if err == nil {
			err = errors.New("job has no event id")
		}
		return w.deadLetter(ctx, models.WebhookJob{Payload: body}, 0, fmt.Errorf("decode queue message: %w", err))
	}
	return w.Process(ctx, job)
}

// Process applies job unless it was processed before. It returns nil once the event is
// applied or dead-lettered, and an error only when neither could be recorded.
func (w *WebhookWorker) Process(ctx context.Context, job models.WebhookJob) error {
	start := time.Now()
	defer func() { w.metrics.ApplyDuration.Observe(time.Since(start).Seconds()) }()

	done, err := w.events.IsProcessed(ctx, job.EventID)
	if err != nil {
		w.logger.Warn("Could not check processed events, applying anyway", zap.String("eventID", job.EventID), zap.Error(err))
	} else if done {
		w.logger.Info("Skipping already processed event", zap.String("eventID", job.EventID))
		w.metrics.Outcome(models.OutcomeDuplicate)
		return nil
	}

	outcome, attempts, err := w.applyWithRetry(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.deadLetter(ctx, job, attempts, err)
	}
	w.markProcessed(ctx, job, outcome)
	return nil
}

func (w *WebhookWorker) applyWithRetry(ctx context.Context, job models.WebhookJob) (string, int, error) {
	event, err := payments.ParseEvent(job.Payload)
	if err != nil {
		return "", 1, err
	}

	var lastErr error
	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		outcome, err := w.reconciler.Apply(ctx, event)
		if err == nil {
			return outcome, attempt, nil
		}
		lastErr = err
		if IsPermanent(err) {
			w.logger.Error("Webhook event failed permanently",
				zap.String("eventID", job.EventID), zap.Int("attempt", attempt), zap.Error(err))
			return "", attempt, err
		}
		if attempt == w.policy.MaxAttempts {
			return "", attempt, lastErr
		}

		wait := w.policy.Backoff(attempt)
		w.logger.Warn("Webhook event apply failed, retrying",
			zap.String("eventID", job.EventID), zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		w.metrics.Outcome(metrics.OutcomeRetried)
		if sleepErr := w.sleep(ctx, wait); sleepErr != nil {
			return "", attempt, sleepErr
		}
	}
	return "", w.policy.MaxAttempts, lastErr
}

func (w *WebhookWorker) markProcessed(ctx context.Context, job models.WebhookJob, outcome string) {
	w.metrics.Outcome(outcome)
	err := w.events.MarkProcessed(ctx, models.ProcessedEvent{EventID: job.EventID, EventType: job.EventType, Outcome: outcome})
	if err != nil {
		w.logger.Warn("Failed to record processed event", zap.String("eventID", job.EventID), zap.Error(err))
	}
}

func (w *WebhookWorker) deadLetter(ctx context.Context, job models.WebhookJob, attempts int, cause error) error {
	now := time.Now().UTC()
	letter := &models.DeadLetter{
		EventID:       job.EventID,
		EventType:     job.EventType,
		Payload:       string(job.Payload),
		Created:       job.Created,
		Attempts:      attempts,
		LastError:     cause.Error(),
		CreatedAt:     now,
		LastAttemptAt: now,
	}
	if err := w.deadLetters.Add(ctx, letter); err != nil {
		w.logger.Error("Failed to dead-letter webhook event", zap.String("eventID", job.EventID), zap.Error(err))
		return fmt.Errorf("dead-letter event %s: %w", job.EventID, err)
	}

	w.metrics.Outcome(metrics.OutcomeDeadLettered)
	w.logger.Error("Webhook event dead-lettered",
		zap.String("eventID", job.EventID), zap.String("deadLetterID", letter.ID),
		zap.Int("attempts", attempts), zap.Error(cause))
	alert(ctx, w.alerter, w.logger, "webhook event dead-lettered",
		fmt.Sprintf("Event %s (%s) failed after %d attempt(s): %v\nDead letter: %s",
			job.EventID, job.EventType, attempts, cause, letter.ID))
	return nil
}

// deadLetterService implements DeadLetterService on top of the worker's retry path.
type deadLetterService struct {
	worker      *WebhookWorker
	deadLetters db.DeadLetterRepository
}

func NewDeadLetterService(worker *WebhookWorker, deadLetters db.DeadLetterRepository) DeadLetterService {
	return &deadLetterService{worker: worker, deadLetters: deadLetters}
}

func (s *deadLetterService) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	return s.deadLetters.List(ctx, limit)
}

func (s *deadLetterService) get(ctx context.Context, id string) (*models.DeadLetter, error) {
	letter, err := s.deadLetters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeadLetterNotFound, id)
		}
		return nil, err
	}
	return letter, nil
}

// Replay applies a dead letter again. On success the letter is removed; on failure
// its attempt count and last error are updated.
func (s *deadLetterService) Replay(ctx context.Context, id string) error {
	letter, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	job := letter.Job()
	outcome, attempts, applyErr := s.worker.applyWithRetry(ctx, job)
	if applyErr != nil {
		letter.Attempts += attempts
		letter.LastError = applyErr.Error()
		letter.LastAttemptAt = time.Now().UTC()
		if err := s.deadLetters.Add(ctx, letter); err != nil {
			s.worker.logger.Error("Failed to update dead letter after replay", zap.String("deadLetterID", id), zap.Error(err))
		}
		return fmt.Errorf("replay %s: %w", id, applyErr)
	}

	s.worker.markProcessed(ctx, job, outcome)
	s.worker.metrics.Outcome(metrics.OutcomeReplayed)
	if err := s.deadLetters.Delete(ctx, id); err != nil {
		return fmt.Errorf("replayed %s but could not delete it: %w", id, err)
	}
	return nil
}

func (s *deadLetterService) Delete(ctx context.Context, id string) error {
	if err := s.deadLetters.Delete(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDeadLetterNotFound, id)
		}
		return err
	}
	return nil
}

func (s *deadLetterService) Purge(ctx context.Context) (int, error) {
	return s.deadLetters.Purge(ctx)
}
