// Package store is the datastore layer. Handlers and jobs depend on the
// Store interface and receive an explicitly constructed implementation, so
// tests can substitute doubles.
package store

import (
	"errors"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/domain/users"
)

var ErrNotFound = errors.New("record not found")

type Store interface {
	// InTx runs fn against a transactional view of the store; fn returning
	// an error rolls every write back.
	InTx(fn func(Store) error) error

	GetUser(id uint) (*users.User, error)
	SetPayoutAddress(userID uint, address string) error

	GetPlan(id uint) (*plans.Plan, error)
	ListPlans() ([]plans.Plan, error)

	CreateTransaction(tx *billing.Transaction) error
	GetTransaction(id uint) (*billing.Transaction, error)
	GetTransactionByProviderRef(provider, ref string) (*billing.Transaction, error)
	SetTransactionProviderRef(id uint, ref string) error
	// FinishTransaction moves a pending transaction to a terminal status.
	// Returns false when the transaction was not pending (already terminal).
	FinishTransaction(id uint, status string) (bool, error)
	ListTransactions(userID uint) ([]billing.Transaction, error)
	LatestCompletedTransactionAfter(userID, planID uint, after time.Time) (*billing.Transaction, error)
	StalePendingTransactions(cutoff time.Time) ([]billing.Transaction, error)

	CreateSubscription(sub *billing.Subscription) error
	GetSubscription(id uint) (*billing.Subscription, error)
	GetSubscriptionByProviderRef(ref string) (*billing.Subscription, error)
	UpdateSubscription(id uint, updates map[string]interface{}) error

	CreateOrder(order *billing.Order) error
	ListOrders(userID uint) ([]billing.Order, error)
	OrderExistsForTransaction(transactionID uint) (bool, error)
	ActivateDueOrders(now time.Time) (int64, error)
	ExpiryCandidates(now time.Time) ([]billing.Order, error)
	// ExtendOrder pushes an order's window forward, guarded on the end date
	// read at the start of the step. Returns false when another run already
	// moved it.
	ExtendOrder(id uint, prevEnd, newEnd time.Time, transactionID uint) (bool, error)
	// ExpireOrder marks an order expired; false when it already left the
	// expirable statuses.
	ExpireOrder(id uint, prevEnd time.Time) (bool, error)

	CreateSubscriptionSession(s *billing.SubscriptionSession) error
	GetActiveSubscriptionSession(token string, subscriptionID uint, now time.Time) (*billing.SubscriptionSession, error)
	MarkSessionUsed(id uint) error

	AppendEvent(ev *billing.SubscriptionEvent) error
	HasEvent(provider, providerEventID string) (bool, error)
}
