package users

import (
	"time"
)

type User struct {
	ID       uint `gorm:"primaryKey"`
	Name     string
	Lastname string
	Email    string `gorm:"not null;uniqueIndex:idx_users_email"`
	Role     string

	// BTC payout address mining rewards are sent to. Upserted on checkout.
	PayoutAddress *string `gorm:"column:payout_address"`

	StripeCustomerID *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_users_stripe_customer_id"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
