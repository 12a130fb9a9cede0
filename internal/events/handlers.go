package events

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/festivo/festivo/internal/idgen"
	"github.com/festivo/festivo/internal/validation"
)

// Handler provides HTTP endpoints for the event directory.
type Handler struct {
	store    Store
	currency string
}

// NewHandler creates a new events handler.
func NewHandler(store Store, currency string) *Handler {
	return &Handler{store: store, currency: currency}
}

// RegisterRoutes sets up event routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.Create)
	r.GET("/events/:id", h.Get)
}

// CreateRequest is the payload for registering an event.
type CreateRequest struct {
	OrganizerID string    `json:"organizerId" binding:"required"`
	Name        string    `json:"name" binding:"required"`
	StartsAt    time.Time `json:"startsAt" binding:"required"`
}

// Create handles POST /v1/events
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	name := validation.SanitizeString(req.Name, 200)
	if strings.TrimSpace(name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name must not be empty"})
		return
	}

	ev := &Event{
		ID:          idgen.WithPrefix("evt_"),
		OrganizerID: req.OrganizerID,
		Name:        name,
		StartsAt:    req.StartsAt,
		Currency:    h.currency,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), ev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"event": ev})
}

// Get handles GET /v1/events/:id
func (h *Handler) Get(c *gin.Context) {
	ev, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": ev})
}
