package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"hashrent-backend/config"
	"hashrent-backend/database"
	billingapi "hashrent-backend/internal/api/billing"
	checkoutapi "hashrent-backend/internal/api/checkout"
	ordersapi "hashrent-backend/internal/api/orders"
	plansapi "hashrent-backend/internal/api/plans"
	subscriptionsapi "hashrent-backend/internal/api/subscriptions"
	webhooksapi "hashrent-backend/internal/api/webhooks"
	routes "hashrent-backend/internal/app/http"
	"hashrent-backend/internal/jobs"
	"hashrent-backend/internal/payments"
	"hashrent-backend/internal/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// gin.SetMode(gin.ReleaseMode) uncomment only in production
	config.LoadEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db := database.InitDB()
	st := store.NewGormStore(db)

	providers := payments.NewRegistry(
		payments.NewStripeProvider(config.STRIPE_SECRET_KEY, config.STRIPE_WEBHOOK_SECRET, config.APP_URL),
		payments.NewNOWPaymentsProvider(config.NOWPAYMENTS_API_KEY, config.NOWPAYMENTS_IPN_SECRET, config.NOWPAYMENTS_API_URL, config.APP_URL),
	)

	orderReconciler := jobs.NewOrderReconciler(st, logger)
	scheduler, err := jobs.Schedule(orderReconciler, config.CRON_SCHEDULE, logger)
	if err != nil {
		log.Fatal("❌ Failed to schedule order reconciler:", err)
	}
	defer scheduler.Stop()

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{os.Getenv("CORS_ORIGIN")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, &routes.Handlers{
		Checkout:      checkoutapi.NewHandler(st, providers, logger),
		Webhooks:      webhooksapi.NewHandler(providers, webhooksapi.NewReconciler(st, logger), logger),
		Subscriptions: subscriptionsapi.NewHandler(st, providers, config.STRIPE_PORTAL_URL, config.APP_URL, logger),
		Orders:        ordersapi.NewHandler(st, orderReconciler),
		Billing:       billingapi.NewHandler(st),
		Plans:         plansapi.NewHandler(st),
	})

	r.Run(":" + config.PORT)
}
