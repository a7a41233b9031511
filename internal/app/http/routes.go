package routes

import (
	billingapi "hashrent-backend/internal/api/billing"
	checkoutapi "hashrent-backend/internal/api/checkout"
	ordersapi "hashrent-backend/internal/api/orders"
	plansapi "hashrent-backend/internal/api/plans"
	subscriptionsapi "hashrent-backend/internal/api/subscriptions"
	webhooksapi "hashrent-backend/internal/api/webhooks"
	"hashrent-backend/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Checkout      *checkoutapi.Handler
	Webhooks      *webhooksapi.Handler
	Subscriptions *subscriptionsapi.Handler
	Orders        *ordersapi.Handler
	Billing       *billingapi.Handler
	Plans         *plansapi.Handler
}

func RegisterRoutes(r *gin.Engine, h *Handlers) {
	// raw body required for signature verification, no sanitization here
	r.POST("/webhooks/:provider", h.Webhooks.HandleWebhook)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/cron/update-order-status", h.Orders.UpdateOrderStatus)

	public := r.Group("/")
	public.Use(middleware.SanitizeInput())
	public.GET("/plans", h.Plans.ListPlans)
	public.GET("/subscriptions/manage", h.Subscriptions.ValidateManageSession)

	// cancel is authorized by session token or by the caller's identity
	public.POST("/subscriptions/cancel", middleware.OptionalAuth(), h.Subscriptions.Cancel)

	// Authenticated
	auth := r.Group("/")
	auth.Use(middleware.AuthMiddleware())
	auth.POST("/checkout", h.Checkout.Checkout)
	auth.POST("/checkout-session", h.Checkout.CreateCheckoutSession)
	auth.POST("/subscriptions/manage", h.Subscriptions.CreateManageSession)
	auth.GET("/orders", h.Orders.ListOrders)
	auth.GET("/payments", h.Billing.GetPaymentHistory)
}
