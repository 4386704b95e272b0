package api

import "kansha-backend-go/internal/models"

// ErrorResponse is a generic structure for returning errors via API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse is a generic structure for simple success messages.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CheckoutErrorResponse is the failure body of the checkout endpoints.
type CheckoutErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// WebhookAckResponse acknowledges a webhook delivery.
type WebhookAckResponse struct {
	Received bool `json:"received"`
}

// DestinationResponse tells the front end where to route the user.
type DestinationResponse struct {
	Destination string `json:"destination"`
	Role        string `json:"role,omitempty"`
}

// ProfileResponse is the stored profile plus the display name of the subscribed plan.
type ProfileResponse struct {
	*models.User
	PlanName string `json:"planName,omitempty"`
}

// PortalSessionResponse returns the URL for the Stripe Customer Portal.
type PortalSessionResponse struct {
	URL string `json:"url"`
}

// DeadLetterListResponse lists dead-lettered webhook events.
type DeadLetterListResponse struct {
	DeadLetters []*models.DeadLetter `json:"deadLetters"`
	Count       int                  `json:"count"`
}
