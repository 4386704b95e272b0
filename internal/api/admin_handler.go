package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kansha-backend-go/internal/core"
)

const defaultDeadLetterLimit = 100

// AdminHandler exposes dead-letter operations to administrators.
type AdminHandler struct {
	deadLetters core.DeadLetterService
	logger      *zap.Logger
}

func NewAdminHandler(dl core.DeadLetterService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{deadLetters: dl, logger: logger}
}

func (h *AdminHandler) fail(c *gin.Context, op string, err error) {
	if errors.Is(err, core.ErrDeadLetterNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Dead letter not found"})
		return
	}
	h.logger.Error("Dead letter operation failed", zap.String("op", op), zap.Error(err))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Dead letter " + op + " failed", Details: err.Error()})
}

// ListDeadLetters handles GET /api/v1/admin/dead-letters?limit=N.
func (h *AdminHandler) ListDeadLetters(c *gin.Context) {
	limit := defaultDeadLetterLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	letters, err := h.deadLetters.List(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "list", err)
		return
	}
	c.JSON(http.StatusOK, DeadLetterListResponse{DeadLetters: letters, Count: len(letters)})
}

// ReplayDeadLetter handles POST /api/v1/admin/dead-letters/:id/replay.
func (h *AdminHandler) ReplayDeadLetter(c *gin.Context) {
	id := c.Param("id")
	if err := h.deadLetters.Replay(c.Request.Context(), id); err != nil {
		h.fail(c, "replay", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Dead letter replayed", Data: gin.H{"id": id}})
}

// DeleteDeadLetter handles DELETE /api/v1/admin/dead-letters/:id.
func (h *AdminHandler) DeleteDeadLetter(c *gin.Context) {
	if err := h.deadLetters.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PurgeDeadLetters handles DELETE /api/v1/admin/dead-letters.
func (h *AdminHandler) PurgeDeadLetters(c *gin.Context) {
	n, err := h.deadLetters.Purge(c.Request.Context())
	if err != nil {
		h.fail(c, "purge", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Dead letters purged", Data: gin.H{"deleted": n}})
}
