package bookings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for bookings.
type Handler struct {
	service *Service
}

// NewHandler creates a new bookings handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up booking routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/bookings/:reference", h.GetByReference)
	r.GET("/users/:id/bookings", h.ListByUser)
	r.GET("/events/:id/bookings", h.ListByEvent)
	r.POST("/bookings/:reference/check-in", h.CheckIn)
	r.POST("/bookings/:reference/waiver", h.AcceptWaiver)
	r.POST("/bookings/:reference/cancel", h.Cancel)
}

// GetByReference handles GET /v1/bookings/:reference
func (h *Handler) GetByReference(c *gin.Context) {
	b, err := h.service.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// ListByUser handles GET /v1/users/:id/bookings
func (h *Handler) ListByUser(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.service.ListByUser(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list, "count": len(list)})
}

// ListByEvent handles GET /v1/events/:id/bookings
func (h *Handler) ListByEvent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.service.ListByEvent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list, "count": len(list)})
}

// CheckIn handles POST /v1/bookings/:reference/check-in
func (h *Handler) CheckIn(c *gin.Context) {
	b, err := h.service.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.service.CheckIn(c.Request.Context(), b.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "checked_in"})
}

// AcceptWaiver handles POST /v1/bookings/:reference/waiver
func (h *Handler) AcceptWaiver(c *gin.Context) {
	b, err := h.service.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.service.AcceptWaiver(c.Request.Context(), b.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "waiver_accepted"})
}

// Cancel handles POST /v1/bookings/:reference/cancel
func (h *Handler) Cancel(c *gin.Context) {
	b, err := h.service.GetByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.service.Cancel(c.Request.Context(), b.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrAlreadyCheckedIn):
		status, code = http.StatusConflict, "already_checked_in"
	case errors.Is(err, ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
