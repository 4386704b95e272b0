package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/configs"
	"kansha-backend-go/internal/core"
	"kansha-backend-go/internal/middleware"
	"kansha-backend-go/internal/models"
)

// UserHandler handles user-profile related API endpoints.
type UserHandler struct {
	userService core.UserService
	catalog     *configs.Catalog
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(us core.UserService, catalog *configs.Catalog, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: us, catalog: catalog, logger: logger}
}

// GetCurrentUserProfile handles GET /api/v1/users/me.
func (h *UserHandler) GetCurrentUserProfile(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication error: User ID not found in context"})
		return
	}

	user, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "User profile not found"})
			return
		}
		h.logger.Error("Failed to load user profile", zap.String("userID", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to retrieve user profile"})
		return
	}

	resp := ProfileResponse{User: user}
	if user.HasSubscription() {
		resp.PlanName = h.catalog.PlanNameForPrice(user.Subscription.PriceID)
	}
	c.JSON(http.StatusOK, resp)
}

// SelectRole handles PUT /api/v1/users/me/role.
func (h *UserHandler) SelectRole(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication error: User ID not found in context"})
		return
	}

	var req models.SelectRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
		return
	}

	user, dest, err := h.userService.SelectRole(c.Request.Context(), id, req.Role)
	if err != nil {
		if errors.Is(err, core.ErrInvalidRole) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: core.ErrInvalidRole.Error()})
			return
		}
		h.logger.Error("Failed to save role", zap.String("userID", id.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to save role"})
		return
	}
	c.JSON(http.StatusOK, DestinationResponse{Destination: string(dest), Role: user.Role.String()})
}
