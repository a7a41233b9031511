package orders

import (
	"net/http"
	"time"

	"hashrent-backend/internal/jobs"
	"hashrent-backend/internal/store"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store      store.Store
	reconciler *jobs.OrderReconciler
}

func NewHandler(s store.Store, reconciler *jobs.OrderReconciler) *Handler {
	return &Handler{store: s, reconciler: reconciler}
}

// UpdateOrderStatus is the external-scheduler trigger for a reconciliation
// pass, alongside the in-process cron.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	processed := h.reconciler.Run()
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"ordersProcessed": processed,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	orders, err := h.store.ListOrders(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load orders"})
		return
	}

	c.JSON(http.StatusOK, orders)
}
