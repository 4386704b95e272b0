package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"go.uber.org/zap"

	"kansha-backend-go/internal/metrics"
	"kansha-backend-go/internal/models"
	"kansha-backend-go/pkg/messagequeue"
)

type workerFixture struct {
	*reconcilerFixture
	events      *fakeEventRepo
	deadLetters *fakeDeadLetters
	metrics     *metrics.Metrics
	worker      *WebhookWorker
	sleeps      []time.Duration
}

func newWorkerFixture(t *testing.T, users ...*models.User) *workerFixture {
	t.Helper()
	f := &workerFixture{
		reconcilerFixture: newReconcilerFixture(users...),
		events:            newFakeEventRepo(),
		deadLetters:       newFakeDeadLetters(),
		metrics:           newTestMetrics(),
	}
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: 10 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	f.worker = NewWebhookWorker(f.rec, f.events, f.deadLetters, policy, f.alerter, f.metrics, zap.NewNop())
	f.worker.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func subscriptionJob(t *testing.T, eventID, userID string) models.WebhookJob {
	payload := eventPayload(t, eventID, stripe.EventTypeCustomerSubscriptionUpdated, 1000, subscriptionObject("sub_1", "active", userID))
	return models.WebhookJob{
		EventID:   eventID,
		EventType: string(stripe.EventTypeCustomerSubscriptionUpdated),
		Created:   1000,
		Payload:   payload,
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(5))

	p.JitterFraction = 0.5
	for i := 0; i < 20; i++ {
		d := p.Backoff(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	f := newWorkerFixture(t, &models.User{ID: "u1"})
	failures := 2
	f.users.applyFn = func(string, models.Subscription) error {
		if failures > 0 {
			failures--
			return errors.New("deadline exceeded")
		}
		return nil
	}

	require.NoError(t, f.worker.Process(context.Background(), subscriptionJob(t, "evt_1", "u1")))

	assert.Len(t, f.sleeps, 2)
	assert.Equal(t, "active", f.users.get("u1").Subscription.Status)
	assert.Equal(t, models.OutcomeApplied, f.events.processed["evt_1"].Outcome)
	assert.Zero(t, f.deadLetters.count())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.WebhookOutcomes.WithLabelValues(metrics.OutcomeRetried)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookOutcomes.WithLabelValues(models.OutcomeApplied)))
}

func TestProcessDeadLettersAfterMaxAttempts(t *testing.T) {
	f := newWorkerFixture(t, &models.User{ID: "u1"})
	f.users.applyFn = func(string, models.Subscription) error { return errors.New("unavailable") }

	require.NoError(t, f.worker.Process(context.Background(), subscriptionJob(t, "evt_1", "u1")))

	letters, err := f.deadLetters.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "evt_1", letters[0].EventID)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Contains(t, letters[0].LastError, "unavailable")
	assert.Len(t, f.sleeps, 2)
	assert.Equal(t, 1, f.alerter.count())
	assert.Empty(t, f.events.processed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookOutcomes.WithLabelValues(metrics.OutcomeDeadLettered)))
}

func TestProcessDeadLettersPermanentFailureWithoutRetry(t *testing.T) {
	f := newWorkerFixture(t)

	require.NoError(t, f.worker.Process(context.Background(), subscriptionJob(t, "evt_1", "ghost")))

	assert.Empty(t, f.sleeps)
	letters, _ := f.deadLetters.List(context.Background(), 10)
	require.Len(t, letters, 1)
	assert.Equal(t, 1, letters[0].Attempts)
}

func TestProcessReturnsErrorWhenDeadLetterCannotBeStored(t *testing.T) {
	f := newWorkerFixture(t)
	f.deadLetters.addErr = errors.New("firestore down")

	err := f.worker.Process(context.Background(), subscriptionJob(t, "evt_1", "ghost"))
	require.Error(t, err)
}

func TestProcessSkipsAlreadyProcessedEvent(t *testing.T) {
	f := newWorkerFixture(t, &models.User{ID: "u1"})
	f.events.processed["evt_1"] = models.ProcessedEvent{EventID: "evt_1", Outcome: models.OutcomeApplied}

	require.NoError(t, f.worker.Process(context.Background(), subscriptionJob(t, "evt_1", "u1")))
	assert.Nil(t, f.users.get("u1").Subscription)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookOutcomes.WithLabelValues(models.OutcomeDuplicate)))
}

func TestHandleMessageDeadLettersUndecodableBody(t *testing.T) {
	f := newWorkerFixture(t)

	require.NoError(t, f.worker.HandleMessage(context.Background(), []byte("{not json")))
	assert.Equal(t, 1, f.deadLetters.count())
}

func TestWorkerConsumesFromQueue(t *testing.T) {
	f := newWorkerFixture(t, &models.User{ID: "u1"})
	queue := messagequeue.NewMemoryQueue(4)
	dispatcher := QueueDispatcher{Queue: queue, QueueName: "events"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx, queue, "events") }()

	require.NoError(t, dispatcher.Dispatch(context.Background(), subscriptionJob(t, "evt_q", "u1")))

	require.Eventually(t, func() bool {
		f.events.mu.Lock()
		defer f.events.mu.Unlock()
		_, ok := f.events.processed["evt_q"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, "active", f.users.get("u1").Subscription.Status)
}

func TestReplayAppliesDeadLetterAndRemovesIt(t *testing.T) {
	f := newWorkerFixture(t)
	require.NoError(t, f.worker.Process(context.Background(), subscriptionJob(t, "evt_1", "u1")))
	letters, _ := f.deadLetters.List(context.Background(), 10)
	require.Len(t, letters, 1)

	svc := NewDeadLetterService(f.worker, f.deadLetters)

	err := svc.Replay(context.Background(), letters[0].ID)
	require.Error(t, err)
	stored, _ := f.deadLetters.Get(context.Background(), letters[0].ID)
	assert.Equal(t, 2, stored.Attempts)

	f.users.users["u1"] = &models.User{ID: "u1"}
	require.NoError(t, svc.Replay(context.Background(), letters[0].ID))

	assert.Zero(t, f.deadLetters.count())
	assert.Equal(t, "active", f.users.get("u1").Subscription.Status)
	assert.Contains(t, f.events.processed, "evt_1")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookOutcomes.WithLabelValues(metrics.OutcomeReplayed)))
}

func TestDeadLetterServiceNotFound(t *testing.T) {
	f := newWorkerFixture(t)
	svc := NewDeadLetterService(f.worker, f.deadLetters)

	assert.ErrorIs(t, svc.Replay(context.Background(), "missing"), ErrDeadLetterNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), ErrDeadLetterNotFound)
}

func TestDeadLetterServicePurge(t *testing.T) {
	f := newWorkerFixture(t)
	require.NoError(t, f.worker.Process(context.Background(), subscriptionJob(t, "evt_1", "ghost")))
	require.NoError(t, f.worker.Process(context.Background(), subscriptionJob(t, "evt_2", "ghost")))

	svc := NewDeadLetterService(f.worker, f.deadLetters)
	n, err := svc.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, f.deadLetters.count())
}
