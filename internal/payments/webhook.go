package payments

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

var (
	// ErrMissingSecret means no signing secret is configured.
	ErrMissingSecret = errors.New("webhook signing secret is not configured")
	// ErrSignature means the payload could not be authenticated or parsed as an event.
	ErrSignature = errors.New("webhook signature verification failed")
	// ErrPayload means a verified event carries an object that does not decode.
	ErrPayload = errors.New("webhook payload could not be decoded")
)

// WebhookVerifier authenticates Stripe webhook deliveries.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against the exact payload bytes.
func (v *WebhookVerifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	if v.secret == "" {
		return stripe.Event{}, ErrMissingSecret
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return event, nil
}

// ParseEvent decodes an event that was verified earlier, e.g. when it comes off the queue.
func ParseEvent(raw []byte) (stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	if event.ID == "" || event.Data == nil {
		return stripe.Event{}, fmt.Errorf("%w: event id or data missing", ErrPayload)
	}
	return event, nil
}

func decodeObject(event stripe.Event, into interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: event %s has no data object", ErrPayload, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, into); err != nil {
		return fmt.Errorf("%w: event %s (%s): %v", ErrPayload, event.ID, event.Type, err)
	}
	return nil
}

// CheckoutSessionFrom decodes the checkout session carried by event.
func CheckoutSessionFrom(event stripe.Event) (*stripe.CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := decodeObject(event, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SubscriptionFrom decodes the subscription carried by event.
func SubscriptionFrom(event stripe.Event) (*stripe.Subscription, error) {
	var s stripe.Subscription
	if err := decodeObject(event, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// InvoiceFrom decodes the invoice carried by event.
func InvoiceFrom(event stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := decodeObject(event, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
