package plans

import "time"

type Plan struct {
	ID             uint `gorm:"primaryKey"`
	Name           string
	HashrateTHS    float64 `gorm:"column:hashrate_ths"`
	Price          float64
	Currency       string
	Duration       string // trailing unit suffix: "30d", "1m", "1y"
	IsSubscription bool
	StripePriceID  string `gorm:"column:stripe_price_id;uniqueIndex:idx_plans_stripe_price_id"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
