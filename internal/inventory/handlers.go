package inventory

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/festivo/festivo/internal/validation"
)

// Handler provides HTTP endpoints for inventory items.
type Handler struct {
	service *Service
}

// NewHandler creates a new inventory handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up inventory routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/inventory", h.Create)
	r.GET("/inventory/:id", h.Get)
	r.GET("/inventory/:id/availability", h.CheckAvailability)
	r.GET("/events/:id/inventory", h.ListByEvent)
	r.POST("/inventory/:id/reserve", h.Reserve)
	r.POST("/inventory/:id/release", h.CancelReservation)
	r.POST("/inventory/:id/refresh", h.RefreshStatus)
}

type quantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// Create handles POST /v1/inventory
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// Get handles GET /v1/inventory/:id
func (h *Handler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// CheckAvailability handles GET /v1/inventory/:id/availability?quantity=N
func (h *Handler) CheckAvailability(c *gin.Context) {
	qty, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil || qty <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity", "message": "quantity must be a positive integer"})
		return
	}

	available, err := h.service.CheckAvailability(c.Request.Context(), c.Param("id"), qty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available, "quantity": qty})
}

// ListByEvent handles GET /v1/events/:id/inventory
func (h *Handler) ListByEvent(c *gin.Context) {
	items, err := h.service.ListByEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// Reserve handles POST /v1/inventory/:id/reserve
func (h *Handler) Reserve(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "quantity is required"})
		return
	}

	item, err := h.service.Reserve(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// CancelReservation handles POST /v1/inventory/:id/release
func (h *Handler) CancelReservation(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "quantity is required"})
		return
	}

	item, err := h.service.CancelReservation(c.Request.Context(), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// RefreshStatus handles POST /v1/inventory/:id/refresh
func (h *Handler) RefreshStatus(c *gin.Context) {
	item, err := h.service.RefreshStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInsufficientInventory):
		status, code = http.StatusConflict, "insufficient_inventory"
	case errors.Is(err, ErrReservationMismatch):
		status, code = http.StatusConflict, "reservation_mismatch"
	case errors.Is(err, ErrSalesClosed):
		status, code = http.StatusConflict, "sales_closed"
	case errors.Is(err, ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
