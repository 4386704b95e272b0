package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/internal/core"
	"kansha-backend-go/internal/middleware"
	"kansha-backend-go/internal/models"
)

// SessionHandler exposes the auth gate: where a user belongs and when that changes.
type SessionHandler struct {
	gate   *core.AuthGate
	logger *zap.Logger
}

func NewSessionHandler(gate *core.AuthGate, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{gate: gate, logger: logger}
}

func destinationResponse(state core.GateState) DestinationResponse {
	resp := DestinationResponse{Destination: string(state.Destination)}
	if state.Role != models.RoleUnset {
		resp.Role = state.Role.String()
	}
	return resp
}

// Destination handles GET /api/v1/session/destination. Visitors without a token go to the landing page.
func (h *SessionHandler) Destination(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	state := h.gate.Resolve(c.Request.Context(), id)
	if state.Err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to read user profile"})
		return
	}
	c.JSON(http.StatusOK, destinationResponse(state))
}

// Events handles GET /api/v1/session/events as a server-sent-event stream.
// The stream ends when the client disconnects.
func (h *SessionHandler) Events(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return
	}

	states := h.gate.Watch(c.Request.Context(), id)
	h.logger.Debug("Session stream opened", zap.String("userID", id.UID))

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		state, ok := <-states
		if !ok {
			return false
		}
		if state.Err != nil {
			c.SSEvent("error", ErrorResponse{Error: "Failed to read user profile"})
			return true
		}
		c.SSEvent("destination", destinationResponse(state))
		return true
	})
	h.logger.Debug("Session stream closed", zap.String("userID", id.UID))
}

// SignOut handles POST /api/v1/session/signout.
func (h *SessionHandler) SignOut(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if err := h.gate.SignOut(c.Request.Context(), userID); err != nil {
		h.logger.Error("Sign out failed", zap.String("userID", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to sign out"})
		return
	}
	c.JSON(http.StatusOK, DestinationResponse{Destination: string(core.DestinationLanding)})
}
