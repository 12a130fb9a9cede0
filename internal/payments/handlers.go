package payments

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/festivo/festivo/internal/validation"
)

// Handler provides HTTP endpoints for payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.Create)
	r.GET("/payments/:id", h.Get)
	r.GET("/events/:id/payments", h.ListByEvent)
}

// Create handles POST /v1/payments
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	payment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		var verrs validation.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
		case errors.Is(err, ErrDuplicateReference):
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate_reference", "message": "Payment reference already exists"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment": payment})
}

// Get handles GET /v1/payments/:id
func (h *Handler) Get(c *gin.Context) {
	payment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

// ListByEvent handles GET /v1/events/:id/payments
func (h *Handler) ListByEvent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.service.ListByEvent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": list, "count": len(list)})
}
