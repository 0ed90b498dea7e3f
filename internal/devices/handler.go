package devices

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/roomsense/backend/internal/middleware"
	"github.com/roomsense/backend/internal/policy"
	"github.com/roomsense/backend/pkg/database"
	"github.com/roomsense/backend/pkg/response"
)

// BindRequest is the body for PUT /device.
type BindRequest struct {
	DeviceIdentifier string `json:"device_identifier" binding:"required"`
}

// ToggleRequest is the body for PATCH /device.
type ToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// Handler handles device-binding HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a devices handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Bind handles PUT /device. Binding while another binding exists
// surfaces the one-device-per-user constraint as a conflict.
func (h *Handler) Bind(c *gin.Context) {
	var req BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := middleware.Principal(c)
	d, err := h.repo.Bind(c.Request.Context(), p, req.DeviceIdentifier)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, d)
}

// Get handles GET /device.
func (h *Handler) Get(c *gin.Context) {
	p := middleware.Principal(c)
	d, err := h.repo.Get(c.Request.Context(), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, d)
}

// Toggle handles PATCH /device.
func (h *Handler) Toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := middleware.Principal(c)
	d, err := h.repo.SetEnabled(c.Request.Context(), p, *req.Enabled)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, d)
}

// Unbind handles DELETE /device.
func (h *Handler) Unbind(c *gin.Context) {
	p := middleware.Principal(c)
	if err := h.repo.Unbind(c.Request.Context(), p); err != nil {
		h.respondError(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var constraint *database.ConstraintError
	switch {
	case errors.Is(err, policy.ErrDenied), errors.Is(err, pgx.ErrNoRows):
		response.NotFound(c, "not found")
	case errors.As(err, &constraint):
		response.Conflict(c, constraint.Error())
	default:
		h.logger.Error("devices handler", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
