package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/internal/core"
	"kansha-backend-go/internal/middleware"
	"kansha-backend-go/internal/models"
)

// CheckoutHandler starts Stripe Checkout for products and plans.
type CheckoutHandler struct {
	checkoutService core.CheckoutService
	logger          *zap.Logger
}

func NewCheckoutHandler(cs core.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: cs, logger: logger}
}

// mapCheckoutErrorToStatus writes the {message, code} failure body. Validation messages are
// passed through; provider and internal failures are not.
func (h *CheckoutHandler) mapCheckoutErrorToStatus(c *gin.Context, err error) {
	var status int
	var resp CheckoutErrorResponse

	switch {
	case errors.Is(err, core.ErrInvalidCheckoutRequest):
		status = http.StatusBadRequest
		resp = CheckoutErrorResponse{Message: err.Error(), Code: "invalid_request"}
	case errors.Is(err, core.ErrIdentityMismatch):
		status = http.StatusForbidden
		resp = CheckoutErrorResponse{Message: "Forbidden", Code: "identity_mismatch"}
	case errors.Is(err, core.ErrEmailMismatch):
		status = http.StatusForbidden
		resp = CheckoutErrorResponse{Message: "Email mismatch", Code: "email_mismatch"}
	case errors.Is(err, core.ErrUserNotFound):
		status = http.StatusNotFound
		resp = CheckoutErrorResponse{Message: "User not found", Code: "user_not_found"}
	case errors.Is(err, core.ErrStripeClient):
		h.logger.Error("Payment provider error during checkout", zap.Error(err))
		status = http.StatusServiceUnavailable
		resp = CheckoutErrorResponse{Message: "Could not create checkout session", Code: "payment_provider_error"}
	default:
		h.logger.Error("Internal error during checkout", zap.Error(err))
		status = http.StatusInternalServerError
		resp = CheckoutErrorResponse{Message: "Internal server error", Code: "internal"}
	}
	c.JSON(status, resp)
}

// CreateProductCheckout handles POST /api/v1/checkout/products.
func (h *CheckoutHandler) CreateProductCheckout(c *gin.Context) {
	var req models.ProductCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CheckoutErrorResponse{Message: core.ErrInvalidCheckoutRequest.Error(), Code: "invalid_request"})
		return
	}

	session, err := h.checkoutService.CreateProductCheckout(c.Request.Context(),
		c.GetString(middleware.ContextUserID), req, c.GetHeader("Origin"))
	if err != nil {
		h.mapCheckoutErrorToStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// CreateSubscriptionCheckout handles POST /api/v1/checkout/subscription.
func (h *CheckoutHandler) CreateSubscriptionCheckout(c *gin.Context) {
	var req models.SubscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CheckoutErrorResponse{Message: core.ErrInvalidCheckoutRequest.Error(), Code: "invalid_request"})
		return
	}

	session, err := h.checkoutService.CreateSubscriptionCheckout(c.Request.Context(),
		c.GetString(middleware.ContextUserID), req, c.GetHeader("Origin"))
	if err != nil {
		h.mapCheckoutErrorToStatus(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
