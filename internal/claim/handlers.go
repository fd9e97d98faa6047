package claim

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Ekaji/veritas/internal/trust"
)

// Handler provides HTTP endpoints for campaigns and claims.
type Handler struct {
	gate      *Gate
	configs   ConfigStore
	receipts  ReceiptStore
	authority string // only this address may create campaigns via the API
}

// NewHandler creates a claim handler.
func NewHandler(gate *Gate, configs ConfigStore, receipts ReceiptStore, authority string) *Handler {
	return &Handler{
		gate:      gate,
		configs:   configs,
		receipts:  receipts,
		authority: strings.ToLower(authority),
	}
}

// RegisterRoutes sets up claim endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/campaigns", h.CreateCampaign)
	r.GET("/campaigns/:campaign", h.GetCampaign)
	r.GET("/campaigns/:campaign/receipts", h.ListReceipts)
	r.POST("/claims", h.SubmitClaim)
}

// CreateCampaignRequest is the body for POST /v1/campaigns.
type CreateCampaignRequest struct {
	Campaign  string `json:"campaign" binding:"required"`
	MinScore  int    `json:"minScore"`
	Authority string `json:"authority" binding:"required"`
	Treasury  string `json:"treasury" binding:"required"`
	AmountWei string `json:"amountWei" binding:"required"`
}

// CreateCampaign initializes a claim campaign. One-shot: a repeat create
// for the same campaign key is rejected.
// POST /v1/campaigns
func (h *Handler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "campaign, authority, treasury, and amountWei are required",
		})
		return
	}

	if !strings.EqualFold(req.Authority, h.authority) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "unauthorized",
			"message": "Only the configured agent authority may create campaigns",
		})
		return
	}

	cfg := &Config{
		Campaign:  req.Campaign,
		MinScore:  req.MinScore,
		Authority: req.Authority,
		Treasury:  req.Treasury,
		AmountWei: req.AmountWei,
	}
	if err := h.configs.Create(c.Request.Context(), cfg); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "campaign_exists",
				"message": "A campaign with this key already exists",
			})
		case errors.Is(err, ErrInvalidConfig):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_config",
				"message": "minScore must be between 0 and 100",
			})
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_config",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"campaign": cfg})
}

// GetCampaign returns a campaign config.
// GET /v1/campaigns/:campaign
func (h *Handler) GetCampaign(c *gin.Context) {
	cfg, err := h.configs.Get(c.Request.Context(), c.Param("campaign"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "campaign_not_found",
			"message": "No campaign with this key",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": cfg})
}

// ListReceipts returns recent paid claims for a campaign.
// GET /v1/campaigns/:campaign/receipts
func (h *Handler) ListReceipts(c *gin.Context) {
	receipts, err := h.receipts.ListByCampaign(c.Request.Context(), c.Param("campaign"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": "Failed to list receipts",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts, "count": len(receipts)})
}

// SubmitClaimRequest is the body for POST /v1/claims.
type SubmitClaimRequest struct {
	Campaign string `json:"campaign" binding:"required"`
	Claimer  string `json:"claimer" binding:"required"`
}

// SubmitClaim attempts a payout for the claimer.
// POST /v1/claims
func (h *Handler) SubmitClaim(c *gin.Context) {
	var req SubmitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "campaign and claimer are required",
		})
		return
	}

	receipt, err := h.gate.Claim(c.Request.Context(), req.Campaign, strings.ToLower(req.Claimer))
	if err != nil {
		switch {
		case errors.Is(err, ErrConfigNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "campaign_not_found",
				"message": "No campaign with this key",
			})
		case errors.Is(err, trust.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no_trust_record",
				"message": "Wallet has no trust history and cannot claim",
			})
		case errors.Is(err, ErrLowTrustScore):
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "low_trust_score",
				"message": err.Error(),
			})
		case errors.Is(err, ErrAlreadyClaimed):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_claimed",
				"message": "This wallet already claimed the campaign payout",
			})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "transfer_failed",
				"message": "Payout could not be completed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}
