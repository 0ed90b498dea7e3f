package geofences

import (
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

// CreateRequest is the body for POST /geofences. Coordinates are
// pointers so that 0 (equator, prime meridian) binds as present rather
// than tripping the required check.
type CreateRequest struct {
	Name        string   `json:"name" binding:"required"`
	CenterLat   *float64 `json:"center_lat" binding:"required,gte=-90,lte=90"`
	CenterLng   *float64 `json:"center_lng" binding:"required,gte=-180,lte=180"`
	RadiusM     float64  `json:"radius_m" binding:"required,gt=0"`
	HysteresisM float64  `json:"hysteresis_m" binding:"gte=0"`
}

// UpdateRequest is the body for PATCH /geofences/:id. Ownership and
// the invite code are not updatable.
type UpdateRequest struct {
	Name        *string  `json:"name"`
	CenterLat   *float64 `json:"center_lat" binding:"omitempty,gte=-90,lte=90"`
	CenterLng   *float64 `json:"center_lng" binding:"omitempty,gte=-180,lte=180"`
	RadiusM     *float64 `json:"radius_m" binding:"omitempty,gt=0"`
	HysteresisM *float64 `json:"hysteresis_m" binding:"omitempty,gte=0"`
}

// Handler handles geofence HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a geofences handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Create handles POST /geofences.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := middleware.Principal(c)
	g := &models.Geofence{
		Name:        req.Name,
		CenterLat:   *req.CenterLat,
		CenterLng:   *req.CenterLng,
		RadiusM:     req.RadiusM,
		HysteresisM: req.HysteresisM,
	}
	if err := h.repo.Create(c.Request.Context(), p, g); err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, g)
}

// List handles GET /geofences.
func (h *Handler) List(c *gin.Context) {
	p := middleware.Principal(c)
	list, err := h.repo.List(c.Request.Context(), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /geofences/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid geofence id")
		return
	}
	p := middleware.Principal(c)
	g, err := h.repo.GetByID(c.Request.Context(), p, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, g)
}

// Update handles PATCH /geofences/:id.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid geofence id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := middleware.Principal(c)
	g, err := h.repo.Update(c.Request.Context(), p, id, UpdateParams{
		Name:        req.Name,
		CenterLat:   req.CenterLat,
		CenterLng:   req.CenterLng,
		RadiusM:     req.RadiusM,
		HysteresisM: req.HysteresisM,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.OK(c, g)
}

// Delete handles DELETE /geofences/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid geofence id")
		return
	}
	p := middleware.Principal(c)
	if err := h.repo.Delete(c.Request.Context(), p, id); err != nil {
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
		h.logger.Error("geofences handler", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
