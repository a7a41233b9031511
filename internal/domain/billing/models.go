package billing

import (
	"time"

	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/domain/users"
)

// Transaction statuses. Pending is the only non-terminal state.
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
	TxRefunded  = "refunded"
)

const (
	PaymentOneTime      = "one_time"
	PaymentSubscription = "subscription"
)

// Subscription statuses.
const (
	SubIncomplete = "incomplete"
	SubActive     = "active"
	SubPastDue    = "past_due"
	SubCanceled   = "canceled"
	SubUnpaid     = "unpaid"
)

// Order statuses.
const (
	OrderPending  = "pending"
	OrderActive   = "active"
	OrderExpired  = "expired"
	OrderCanceled = "canceled"
)

// Transaction is one attempted payment. Created pending by the checkout
// initiator; moved to a terminal status by the webhook reconciler. Never
// deleted.
type Transaction struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint `gorm:"index"`
	User           users.User
	PlanID         uint
	Plan           plans.Plan
	PaymentType    string // one_time | subscription
	Amount         float64
	Currency       string
	Status         string  `gorm:"not null;default:'pending';index"`
	Provider       string  `gorm:"not null"`
	ProviderRef    *string `gorm:"column:provider_ref;uniqueIndex:idx_transactions_provider_ref"`
	SubscriptionID *uint
	Metadata       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription is a recurring billing agreement with the provider.
type Subscription struct {
	ID                     uint `gorm:"primaryKey"`
	UserID                 uint `gorm:"index"`
	User                   users.User
	PlanID                 uint
	Plan                   plans.Plan
	Status                 string  `gorm:"not null;default:'incomplete'"`
	PaymentMethod          string  // stripe | nowpayments
	ProviderSubscriptionID *string `gorm:"column:provider_subscription_id;uniqueIndex:idx_subscriptions_provider_sub_id"`
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order is the customer-facing entitlement: a rented miner / hosting slot
// with a start/end window. Created by the webhook reconciler on first
// successful payment; activated, extended and expired by the scheduled
// order-status job.
type Order struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint `gorm:"index"`
	User           users.User
	PlanID         uint
	Plan           plans.Plan
	TransactionID  uint `gorm:"uniqueIndex:idx_orders_transaction_id"`
	SubscriptionID *uint
	Status         string `gorm:"not null;default:'pending';index"`
	StartDate      time.Time
	EndDate        time.Time `gorm:"index"`
	AutoRenew      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubscriptionSession is an ephemeral management-link token for providers
// without a native customer portal. Read once then marked used, or left to
// expire.
type SubscriptionSession struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint
	SubscriptionID uint   `gorm:"index"`
	Provider       string
	Token          string `gorm:"not null;uniqueIndex:idx_subscription_sessions_token"`
	URL            string
	ExpiresAt      time.Time
	IsUsed         bool `gorm:"default:false"`

	CreatedAt time.Time
}

// SubscriptionEvent is the append-only audit log of lifecycle events. The
// (provider, provider_event_id) pair doubles as the webhook idempotency key.
type SubscriptionEvent struct {
	ID              uint    `gorm:"primaryKey"`
	SubscriptionID  *uint   `gorm:"index"`
	TransactionID   *uint
	Provider        string  `gorm:"not null;uniqueIndex:idx_subscription_events_provider_event,priority:1"`
	ProviderEventID string  `gorm:"column:provider_event_id;not null;uniqueIndex:idx_subscription_events_provider_event,priority:2"`
	EventType       string  `gorm:"not null"`
	Payload         *string `gorm:"type:text"`

	CreatedAt time.Time
}
