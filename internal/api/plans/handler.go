package plans

import (
	"net/http"

	"hashrent-backend/internal/store"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store store.Store
}

func NewHandler(s store.Store) *Handler {
	return &Handler{store: s}
}

// ListPlans returns the purchasable hashrate/hosting plans.
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.store.ListPlans()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load plans"})
		return
	}

	c.JSON(http.StatusOK, plans)
}
