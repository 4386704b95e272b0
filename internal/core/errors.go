package core

import (
	"errors"
	"fmt"
)

// Errors returned by the core services. Handlers map them to HTTP status codes.
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidRole            = errors.New("role must be student, teacher or administrator")
	ErrInvalidCheckoutRequest = errors.New("missing or invalid required fields")
	ErrIdentityMismatch       = errors.New("user id does not match the signed-in user")
	ErrEmailMismatch          = errors.New("email mismatch")
	ErrStripeClient           = errors.New("payment provider error")
	ErrUserStripeNotLinked    = errors.New("user has no billing customer")

	ErrWebhookSecretMissing = errors.New("webhook signing secret is not configured")
	ErrWebhookSignature     = errors.New("webhook signature verification failed")
	ErrWebhookProcessing    = errors.New("webhook payload could not be processed")
	ErrWebhookEnqueue       = errors.New("webhook event could not be queued")
	ErrMissingUserID        = errors.New("event carries no user_id metadata")
	ErrDeadLetterNotFound   = errors.New("dead letter not found")
)

// Catalog misses are validation failures.
var (
	ErrUnknownProduct = fmt.Errorf("%w: unknown product", ErrInvalidCheckoutRequest)
	ErrUnknownPlan    = fmt.Errorf("%w: unknown plan", ErrInvalidCheckoutRequest)
)
