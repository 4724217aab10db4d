package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantumforge/platform/internal/logging"
	"github.com/quantumforge/platform/internal/metrics"
	"github.com/quantumforge/platform/internal/traders"
	"github.com/quantumforge/platform/internal/validation"
)

// Handler provides HTTP handlers for wallet sign-in.
type Handler struct {
	manager *Manager
	traders *traders.Service
}

// NewHandler creates a new auth handler.
func NewHandler(manager *Manager, traderSvc *traders.Service) *Handler {
	return &Handler{manager: manager, traders: traderSvc}
}

// RegisterRoutes sets up the auth routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/wallet", h.WalletSignIn)
	r.POST("/auth/logout", h.Logout)
}

// WalletSignInRequest is the payload for wallet sign-in.
type WalletSignInRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required"`
	Signature     string `json:"signature" binding:"required"`
}

// WalletSignIn handles POST /auth/wallet
//
// The client signs SignInMessage with their wallet key. A valid signature
// either looks up the existing trader or creates a fresh profile for a
// first-time wallet.
func (h *Handler) WalletSignIn(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)

	var req WalletSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "walletAddress and signature are required",
		})
		return
	}

	if !validation.IsValidEthAddress(req.WalletAddress) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "walletAddress must be a valid Ethereum address",
		})
		return
	}

	if !validation.IsValidHex(req.Signature) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "signature must be a hex string",
		})
		return
	}

	if err := VerifySignature(SignInMessage, req.Signature, req.WalletAddress); err != nil {
		metrics.WalletLoginsTotal.WithLabelValues("rejected").Inc()
		logger.Warn("wallet sign-in rejected", "wallet", req.WalletAddress, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_signature",
			"message": "Signature does not match the wallet address",
		})
		return
	}

	trader, created, err := h.traders.FindOrCreateByWallet(ctx, req.WalletAddress)
	if err != nil {
		metrics.WalletLoginsTotal.WithLabelValues("error").Inc()
		logger.Error("wallet sign-in failed", "wallet", req.WalletAddress, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to sign in",
		})
		return
	}

	if err := h.traders.TouchLogin(ctx, trader); err != nil {
		logger.Warn("failed to record login time", "wallet", trader.WalletAddress, "error", err)
	}

	rawToken, _, err := h.manager.IssueToken(ctx, trader.WalletAddress)
	if err != nil {
		metrics.WalletLoginsTotal.WithLabelValues("error").Inc()
		logger.Error("failed to issue session token", "wallet", trader.WalletAddress, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to sign in",
		})
		return
	}

	metrics.WalletLoginsTotal.WithLabelValues("success").Inc()
	logger.Info("wallet signed in", "wallet", trader.WalletAddress, "new_trader", created)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"token":   rawToken,
		"trader":  trader,
		"created": created,
	})
}

// Logout handles POST /auth/logout
// Revokes the session token used on the request.
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	token, ok := GetToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "No active session",
		})
		return
	}

	if err := h.manager.RevokeToken(ctx, token.ID, token.WalletAddress); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to log out",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
