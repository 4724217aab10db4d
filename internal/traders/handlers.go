package traders

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quantumforge/platform/internal/logging"
	"github.com/quantumforge/platform/internal/validation"
)

// Handler provides HTTP handlers for the trader directory API.
type Handler struct {
	service *Service
}

// NewHandler creates a new traders handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the public trader routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/traders", h.ListTraders)
	r.GET("/traders/search", h.SearchByWallet)
	r.GET("/traders/:address", h.GetTrader)
	r.POST("/traders", h.RegisterTrader)
}

// RegisterProtectedRoutes sets up routes that require wallet auth.
// The auth middleware is applied at the group level by the server.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.PUT("/traders/:address", h.UpdateProfile)
}

// RegisterTraderRequest is the payload for creating a trader profile.
type RegisterTraderRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	WalletAddress string `json:"walletAddress"`
	Specialty     string `json:"specialty,omitempty"`
	Performance   string `json:"performance,omitempty"`
}

// RegisterTrader handles POST /traders
//
// Wallet sign-in creates a bare profile automatically, so this exists for
// clients that want to fill in profile details up front.
func (h *Handler) RegisterTrader(c *gin.Context) {
	ctx := c.Request.Context()

	var req RegisterTraderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be valid JSON",
		})
		return
	}

	if verrs := validation.Validate(
		validation.Required("name", req.Name),
		validation.Required("walletAddress", req.WalletAddress),
		validation.ValidAddress("walletAddress", req.WalletAddress),
		validation.MaxLength("name", req.Name, 200),
		validation.MaxLength("email", req.Email, 200),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": verrs.Error(),
			"details": verrs,
		})
		return
	}

	name := validation.SanitizeString(req.Name, 200)
	email := validation.SanitizeString(req.Email, 200)

	trader, err := h.service.Register(ctx, name, email, "trader", req.WalletAddress)
	if err != nil {
		if errors.Is(err, ErrTraderExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "trader_exists",
				"message": "A trader with this wallet address is already registered",
			})
			return
		}
		logging.L(ctx).Error("failed to register trader", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to register trader",
		})
		return
	}

	if req.Specialty != "" || req.Performance != "" {
		upd := ProfileUpdate{}
		if req.Specialty != "" {
			upd.Specialty = &req.Specialty
		}
		if req.Performance != "" {
			upd.Performance = &req.Performance
		}
		if updated, err := h.service.UpdateProfile(ctx, trader.WalletAddress, upd); err == nil {
			trader = updated
		}
	}

	c.JSON(http.StatusCreated, gin.H{"trader": trader})
}

// SearchByWallet handles GET /traders/search?walletAddress=0x...
// Returns an array with zero or one elements so clients can treat
// "no result" and "one result" uniformly.
func (h *Handler) SearchByWallet(c *gin.Context) {
	ctx := c.Request.Context()

	wallet := c.Query("walletAddress")
	if wallet == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "walletAddress query parameter is required",
		})
		return
	}

	trader, err := h.service.FindByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusOK, []*Trader{})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to search traders",
		})
		return
	}

	c.JSON(http.StatusOK, []*Trader{trader})
}

// GetTrader handles GET /traders/:address
func (h *Handler) GetTrader(c *gin.Context) {
	ctx := c.Request.Context()
	address := c.Param("address")

	if !validation.IsValidEthAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "Address must be a valid Ethereum address",
		})
		return
	}

	trader, err := h.service.FindByWallet(ctx, address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Trader not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to get trader",
		})
		return
	}

	c.JSON(http.StatusOK, trader)
}

// ListTraders handles GET /traders
func (h *Handler) ListTraders(c *gin.Context) {
	ctx := c.Request.Context()

	limit := parseIntQuery(c, "limit", 100)
	offset := parseIntQuery(c, "offset", 0)

	list, err := h.service.List(ctx, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list traders",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"traders": list,
		"count":   len(list),
	})
}

// UpdateProfileRequest carries the mutable profile fields. Aggregate
// fields (rating, review count, certification) are never writable here.
type UpdateProfileRequest struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	Specialty   *string `json:"specialty,omitempty"`
	Performance *string `json:"performance,omitempty"`
}

// UpdateProfile handles PUT /traders/:address
// The caller must be authenticated as the wallet they are updating.
func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.L(ctx)
	address := strings.ToLower(c.Param("address"))

	caller := strings.ToLower(c.GetString("walletAddress"))
	if caller == "" || caller != address {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You can only update your own profile",
		})
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	trader, err := h.service.UpdateProfile(ctx, address, ProfileUpdate{
		Name:        req.Name,
		Email:       req.Email,
		Specialty:   req.Specialty,
		Performance: req.Performance,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Trader not found",
			})
			return
		}
		logger.Error("failed to update profile", "error", err, "wallet", address)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to update profile",
		})
		return
	}

	logger.Info("profile updated", "wallet", address)
	c.JSON(http.StatusOK, trader)
}

func parseIntQuery(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil && i >= 0 {
			return i
		}
	}
	return defaultVal
}
