package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/internal/identity"
)

// Context keys set by the auth middleware.
const (
	ContextUserID          = "userID"
	ContextUserEmail       = "userEmail"
	ContextUserDisplayName = "userDisplayName"
	ContextUserPhotoURL    = "userPhotoURL"
	contextIdentity        = "identity"
)

// ErrorResponse is a local definition for sending standardized error messages.
// It mirrors the one in internal/api to avoid an import cycle.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AuthMiddleware provides Gin middleware for Firebase ID token authentication.
type AuthMiddleware struct {
	verifier identity.Verifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
// It panics if verifier is nil, since no authenticated route can work without it.
func NewAuthMiddleware(verifier identity.Verifier, logger *zap.Logger) *AuthMiddleware {
	if verifier == nil {
		panic("identity verifier is not initialized for AuthMiddleware")
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setIdentity(c *gin.Context, id *identity.Identity) {
	c.Set(contextIdentity, id)
	c.Set(ContextUserID, id.UID)
	if id.Email != "" {
		c.Set(ContextUserEmail, id.Email)
	}
	if id.DisplayName != "" {
		c.Set(ContextUserDisplayName, id.DisplayName)
	}
	if id.PhotoURL != "" {
		c.Set(ContextUserPhotoURL, id.PhotoURL)
	}
}

// VerifyToken rejects requests without a valid Firebase ID token in the Authorization header.
func (m *AuthMiddleware) VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header is required"})
			return
		}
		idToken, ok := bearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header format must be 'Bearer {token}'"})
			return
		}

		id, err := m.verifier.VerifyIDToken(c.Request.Context(), idToken)
		if err != nil {
			m.logger.Warn("Rejected ID token", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired authentication token"})
			return
		}

		setIdentity(c, id)
		c.Next()
	}
}

// OptionalToken attaches the identity when a valid token is present and lets the request
// through either way. A signed-out visitor has no identity in the context.
func (m *AuthMiddleware) OptionalToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if idToken, ok := bearerToken(c.GetHeader("Authorization")); ok {
			if id, err := m.verifier.VerifyIDToken(c.Request.Context(), idToken); err == nil {
				setIdentity(c, id)
			} else {
				m.logger.Debug("Ignoring invalid optional ID token", zap.Error(err))
			}
		}
		c.Next()
	}
}

// IdentityFrom returns the identity set by VerifyToken or OptionalToken.
func IdentityFrom(c *gin.Context) (*identity.Identity, bool) {
	v, ok := c.Get(contextIdentity)
	if !ok {
		return nil, false
	}
	id, ok := v.(*identity.Identity)
	return id, ok && id != nil
}
