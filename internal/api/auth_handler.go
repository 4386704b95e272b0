package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/internal/core"
	"kansha-backend-go/internal/middleware"
)

// AuthHandler handles authentication related API endpoints.
type AuthHandler struct {
	userService core.UserService
	logger      *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(us core.UserService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{userService: us, logger: logger}
}

// InitializeUserProfile handles POST /api/v1/users/initialize.
// Called by the client after a Firebase sign-in so the backend profile exists.
func (h *AuthHandler) InitializeUserProfile(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication error: User ID not found in context"})
		return
	}
	if id.Email == "" {
		h.logger.Warn("Initializing profile without e-mail claim", zap.String("userID", id.UID))
	}

	user, created, err := h.userService.GetOrCreate(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to initialize user profile", zap.String("userID", id.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to initialize user profile"})
		return
	}

	if created {
		h.logger.Info("User profile created", zap.String("userID", id.UID))
		c.JSON(http.StatusCreated, user)
		return
	}
	c.JSON(http.StatusOK, user)
}
