package escrow

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for escrow accounts.
type Handler struct {
	service *Service
}

// NewHandler creates a new escrow handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up escrow routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/escrows/:id", h.Get)
	r.POST("/escrows/:id/release", h.Release)
	r.POST("/escrows/:id/cancel", h.Cancel)
	r.POST("/escrows/:id/refund", h.RefundToPayer)
	r.GET("/events/:id/escrows", h.ListByEvent)
	r.GET("/events/:id/escrows/reconcile", h.Reconcile)
	r.GET("/photographers/:id/escrows", h.ListByPhotographer)
}

type actorRequest struct {
	ActorID string `json:"actorId" binding:"required"`
}

// Get handles GET /v1/escrows/:id
func (h *Handler) Get(c *gin.Context) {
	account, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": account})
}

// Release handles POST /v1/escrows/:id/release
func (h *Handler) Release(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "actorId is required"})
		return
	}

	account, err := h.service.Release(c.Request.Context(), c.Param("id"), req.ActorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": account})
}

// Cancel handles POST /v1/escrows/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "actorId is required"})
		return
	}

	account, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.ActorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": account})
}

// RefundToPayer handles POST /v1/escrows/:id/refund
func (h *Handler) RefundToPayer(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "actorId is required"})
		return
	}

	account, err := h.service.RefundToPayer(c.Request.Context(), c.Param("id"), req.ActorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": account})
}

// ListByEvent handles GET /v1/events/:id/escrows
func (h *Handler) ListByEvent(c *gin.Context) {
	accounts, err := h.service.ListByEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrows": accounts, "count": len(accounts)})
}

// Reconcile handles GET /v1/events/:id/escrows/reconcile
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.service.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// ListByPhotographer handles GET /v1/photographers/:id/escrows
func (h *Handler) ListByPhotographer(c *gin.Context) {
	accounts, err := h.service.ListByPhotographer(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrows": accounts, "count": len(accounts)})
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	case errors.Is(err, ErrUnauthorized):
		status, code = http.StatusForbidden, "unauthorized"
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
