package database

import (
	"fmt"
	"log"

	"hashrent-backend/config"
	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/domain/users"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func InitDB() *gorm.DB {
	dsn := config.DB_URL
	if dsn == "" {
		log.Fatal("❌ DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&users.User{},
		&plans.Plan{},
		&billing.Transaction{},
		&billing.Subscription{},
		&billing.Order{},
		&billing.SubscriptionSession{},
		&billing.SubscriptionEvent{},
	); err != nil {
		log.Fatal("❌ AutoMigrate error:", err)
	}

	fmt.Println("✅ Connected and migrated successfully")
	return db
}
