package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

var (
	PORT       string
	DB_URL     string
	JWT_SECRET string
	APP_URL    string

	STRIPE_SECRET_KEY     string
	STRIPE_WEBHOOK_SECRET string
	STRIPE_PORTAL_URL     string

	NOWPAYMENTS_API_KEY    string
	NOWPAYMENTS_IPN_SECRET string
	NOWPAYMENTS_API_URL    string

	CRON_SCHEDULE string
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	PORT = getEnv("PORT", "8080")
	DB_URL = mustEnv("DB_URL")
	JWT_SECRET = mustEnv("JWT_SECRET")
	APP_URL = getEnv("APP_URL", "http://localhost:5173")

	STRIPE_SECRET_KEY = mustEnv("STRIPE_SECRET_KEY")
	STRIPE_WEBHOOK_SECRET = mustEnv("STRIPE_WEBHOOK_SECRET")
	STRIPE_PORTAL_URL = getEnv("STRIPE_PORTAL_URL", "")

	NOWPAYMENTS_API_KEY = mustEnv("NOWPAYMENTS_API_KEY")
	NOWPAYMENTS_IPN_SECRET = mustEnv("NOWPAYMENTS_IPN_SECRET")
	NOWPAYMENTS_API_URL = getEnv("NOWPAYMENTS_API_URL", "https://api.nowpayments.io")

	CRON_SCHEDULE = getEnv("CRON_SCHEDULE", "*/5 * * * *")
}

func mustEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
