package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for wallets.
type Handler struct {
	service *Service
}

// NewHandler creates a new ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up wallet routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:userId", h.GetWallet)
	r.GET("/wallets/:userId/transactions", h.ListTransactions)
	r.GET("/wallets/:userId/verify", h.VerifyBalance)
}

// GetWallet handles GET /v1/wallets/:userId
func (h *Handler) GetWallet(c *gin.Context) {
	wallet, err := h.service.GetWallet(c.Request.Context(), c.Param("userId"))
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallet": wallet})
}

// ListTransactions handles GET /v1/wallets/:userId/transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	wallet, err := h.service.GetWallet(c.Request.Context(), c.Param("userId"))
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txns, err := h.service.ListTransactions(c.Request.Context(), wallet.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

// VerifyBalance handles GET /v1/wallets/:userId/verify
func (h *Handler) VerifyBalance(c *gin.Context) {
	ok, err := h.service.VerifyBalance(c.Request.Context(), c.Param("userId"))
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Wallet not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"consistent": ok})
}
