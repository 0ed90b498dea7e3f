package memberships

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/roomsense/backend/internal/middleware"
	"github.com/roomsense/backend/internal/models"
	"github.com/roomsense/backend/internal/policy"
	"github.com/roomsense/backend/pkg/database"
	"github.com/roomsense/backend/pkg/response"
)

// InviteResolver turns an invite code into its geofence. Implemented
// by geofences.Repository.
type InviteResolver interface {
	GetByInviteCode(ctx context.Context, code string) (*models.Geofence, error)
}

// JoinRequest is the body for POST /geofences/join.
type JoinRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

// PresenceRequest is the body for PUT /geofences/:id/presence. The
// status string comes from the external location service; this layer
// stores it, it never computes it.
type PresenceRequest struct {
	Status models.Status `json:"status" binding:"required,oneof=IN_ROOM AWAY"`
}

// Handler handles membership HTTP endpoints.
type Handler struct {
	repo    *Repository
	invites InviteResolver
	logger  *zap.Logger
}

// NewHandler creates a memberships handler.
func NewHandler(repo *Repository, invites InviteResolver, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, invites: invites, logger: logger}
}

// Join handles POST /geofences/join: resolves the invite code to a
// geofence id, then inserts a member row for the caller.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	g, err := h.invites.GetByInviteCode(c.Request.Context(), req.InviteCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "unknown invite code")
			return
		}
		h.respondError(c, err)
		return
	}
	p := middleware.Principal(c)
	m, err := h.repo.Join(c.Request.Context(), p, g.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, m)
}

// ListByGeofence handles GET /geofences/:id/members.
func (h *Handler) ListByGeofence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid geofence id")
		return
	}
	p := middleware.Principal(c)
	list, err := h.repo.ListByGeofence(c.Request.Context(), p, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, list)
}

// Leave handles POST /geofences/:id/leave: the self-leave rule. Owners
// are refused; a geofence loses its owner only when it is deleted.
func (h *Handler) Leave(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid geofence id")
		return
	}
	p := middleware.Principal(c)
	if err := h.repo.Delete(c.Request.Context(), p, id, p.String()); err != nil {
		h.respondError(c, err)
		return
	}
	response.NoContent(c)
}

// Remove handles DELETE /geofences/:id/members/:userID: the
// owner-removes-other rule.
func (h *Handler) Remove(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid geofence id")
		return
	}
	userID := c.Param("userID")
	if userID == "" {
		response.BadRequest(c, "missing user id")
		return
	}
	p := middleware.Principal(c)
	if err := h.repo.Delete(c.Request.Context(), p, id, userID); err != nil {
		h.respondError(c, err)
		return
	}
	response.NoContent(c)
}

// UpdatePresence handles PUT /geofences/:id/presence.
func (h *Handler) UpdatePresence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid geofence id")
		return
	}
	var req PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := middleware.Principal(c)
	m, err := h.repo.UpdatePresence(c.Request.Context(), p, id, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, m)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var constraint *database.ConstraintError
	switch {
	case errors.Is(err, policy.ErrDenied), errors.Is(err, pgx.ErrNoRows):
		response.NotFound(c, "not found")
	case errors.As(err, &constraint):
		response.Conflict(c, constraint.Error())
	default:
		h.logger.Error("memberships handler", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
