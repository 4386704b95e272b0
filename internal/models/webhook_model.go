package models

import (
	"encoding/json"
	"time"
)

// WebhookJob is a verified provider event waiting to be applied.
// Payload holds the event exactly as it was verified.
type WebhookJob struct {
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	Created    int64           `json:"created"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Attempts   int             `json:"attempts,omitempty"`
}

// Outcome values recorded for processed events.
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeNoTarget  = "no_target"
	OutcomeStale     = "stale"
	OutcomeDuplicate = "duplicate"
)

// ProcessedEvent is stored at webhook_events/{eventId} once an event has been handled.
type ProcessedEvent struct {
	EventID     string    `json:"eventId" firestore:"-"`
	EventType   string    `json:"eventType" firestore:"eventType"`
	Outcome     string    `json:"outcome" firestore:"outcome"`
	ProcessedAt time.Time `json:"processedAt" firestore:"processedAt,serverTimestamp"`
}

// DeadLetter is an event that exhausted its apply attempts.
type DeadLetter struct {
	ID            string    `json:"id" firestore:"-"`
	EventID       string    `json:"eventId" firestore:"eventId"`
	EventType     string    `json:"eventType" firestore:"eventType"`
	Payload       string    `json:"payload" firestore:"payload"`
	Created       int64     `json:"created" firestore:"created"`
	Attempts      int       `json:"attempts" firestore:"attempts"`
	LastError     string    `json:"lastError" firestore:"lastError"`
	CreatedAt     time.Time `json:"createdAt" firestore:"createdAt"`
	LastAttemptAt time.Time `json:"lastAttemptAt" firestore:"lastAttemptAt"`
}

// Job rebuilds the queue job for a replay.
func (d DeadLetter) Job() WebhookJob {
	return WebhookJob{
		EventID:    d.EventID,
		EventType:  d.EventType,
		Created:    d.Created,
		Payload:    json.RawMessage(d.Payload),
		ReceivedAt: time.Now().UTC(),
	}
}
