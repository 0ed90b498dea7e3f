package users

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

// UpsertRequest is the body for PUT /me.
type UpsertRequest struct {
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name" binding:"required"`
}

// UpdateRequest is the body for PATCH /me.
type UpdateRequest struct {
	Email       *string `json:"email" binding:"omitempty,email"`
	DisplayName *string `json:"display_name"`
}

// Handler handles user HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Upsert handles PUT /me: creates the caller's user row on first
// authenticated contact, refreshes it afterwards.
func (h *Handler) Upsert(c *gin.Context) {
	var req UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := middleware.Principal(c)
	u, err := h.repo.Upsert(c.Request.Context(), p, req.Email, req.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, u)
}

// GetSelf handles GET /me.
func (h *Handler) GetSelf(c *gin.Context) {
	p := middleware.Principal(c)
	u, err := h.repo.GetSelf(c.Request.Context(), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, u)
}

// UpdateSelf handles PATCH /me.
func (h *Handler) UpdateSelf(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := middleware.Principal(c)
	u, err := h.repo.UpdateSelf(c.Request.Context(), p, req.Email, req.DisplayName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var constraint *database.ConstraintError
	switch {
	case errors.Is(err, policy.ErrDenied), errors.Is(err, pgx.ErrNoRows):
		response.NotFound(c, "not found")
	case errors.As(err, &constraint):
		response.Conflict(c, constraint.Error())
	default:
		h.logger.Error("users handler", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
