package trust

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handler provides read-only HTTP endpoints for trust records.
// Writes go through the attestation agent, never through the API.
type Handler struct {
	store Store
}

// NewHandler creates a trust record handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up trust endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/trust/:address", h.GetRecord)
}

// GetRecord returns the trust record for a wallet.
// GET /v1/trust/:address
func (h *Handler) GetRecord(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	rec, err := h.store.Get(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "record_not_found",
				"message": "No trust record exists for this wallet",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": "Failed to read trust record",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":    rec,
		"recordKey": RecordKey(address),
	})
}
