package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/internal/db"
	"kansha-backend-go/internal/models"
)

// RequireRole lets the request through only when the stored profile of the signed-in user
// has one of roles. It must run after VerifyToken.
func RequireRole(users db.UserRepository, logger *zap.Logger, roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Insufficient role"})
				return
			}
			logger.Error("Role check failed", zap.String("userID", userID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to check role"})
			return
		}
		if !allowed[models.ParseRole(string(user.Role))] {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Insufficient role"})
			return
		}
		c.Next()
	}
}
