package store

import (
	"errors"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/domain/users"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) InTx(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *gormStore) GetUser(id uint) (*users.User, error) {
	var user users.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *gormStore) SetPayoutAddress(userID uint, address string) error {
	return s.db.Model(&users.User{}).
		Where("id = ?", userID).
		Update("payout_address", address).Error
}

func (s *gormStore) GetPlan(id uint) (*plans.Plan, error) {
	var plan plans.Plan
	if err := s.db.Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, translate(err)
	}
	return &plan, nil
}

func (s *gormStore) ListPlans() ([]plans.Plan, error) {
	var out []plans.Plan
	if err := s.db.Order("price ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) CreateTransaction(tx *billing.Transaction) error {
	return s.db.Create(tx).Error
}

func (s *gormStore) GetTransaction(id uint) (*billing.Transaction, error) {
	var tx billing.Transaction
	if err := s.db.Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

func (s *gormStore) GetTransactionByProviderRef(provider, ref string) (*billing.Transaction, error) {
	var tx billing.Transaction
	if err := s.db.Where("provider = ? AND provider_ref = ?", provider, ref).First(&tx).Error; err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

func (s *gormStore) SetTransactionProviderRef(id uint, ref string) error {
	return s.db.Model(&billing.Transaction{}).
		Where("id = ?", id).
		Update("provider_ref", ref).Error
}

func (s *gormStore) FinishTransaction(id uint, status string) (bool, error) {
	res := s.db.Model(&billing.Transaction{}).
		Where("id = ? AND status = ?", id, billing.TxPending).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) ListTransactions(userID uint) ([]billing.Transaction, error) {
	var out []billing.Transaction
	if err := s.db.
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) LatestCompletedTransactionAfter(userID, planID uint, after time.Time) (*billing.Transaction, error) {
	var tx billing.Transaction
	err := s.db.
		Where("user_id = ? AND plan_id = ? AND status = ? AND created_at > ?",
			userID, planID, billing.TxCompleted, after).
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		return nil, translate(err)
	}
	return &tx, nil
}

func (s *gormStore) StalePendingTransactions(cutoff time.Time) ([]billing.Transaction, error) {
	var out []billing.Transaction
	if err := s.db.
		Where("status = ? AND created_at < ?", billing.TxPending, cutoff).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) CreateSubscription(sub *billing.Subscription) error {
	return s.db.Create(sub).Error
}

func (s *gormStore) GetSubscription(id uint) (*billing.Subscription, error) {
	var sub billing.Subscription
	if err := s.db.Preload("Plan").Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *gormStore) GetSubscriptionByProviderRef(ref string) (*billing.Subscription, error) {
	var sub billing.Subscription
	if err := s.db.Where("provider_subscription_id = ?", ref).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (s *gormStore) UpdateSubscription(id uint, updates map[string]interface{}) error {
	return s.db.Model(&billing.Subscription{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *gormStore) CreateOrder(order *billing.Order) error {
	return s.db.Create(order).Error
}

func (s *gormStore) ListOrders(userID uint) ([]billing.Order, error) {
	var out []billing.Order
	if err := s.db.
		Preload("Plan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) OrderExistsForTransaction(transactionID uint) (bool, error) {
	var count int64
	if err := s.db.Model(&billing.Order{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *gormStore) ActivateDueOrders(now time.Time) (int64, error) {
	res := s.db.Model(&billing.Order{}).
		Where("status = ? AND start_date <= ? AND end_date > ?", billing.OrderPending, now, now).
		Update("status", billing.OrderActive)
	return res.RowsAffected, res.Error
}

func (s *gormStore) ExpiryCandidates(now time.Time) ([]billing.Order, error) {
	var out []billing.Order
	if err := s.db.
		Where("status NOT IN ? AND end_date < ?",
			[]string{billing.OrderExpired, billing.OrderCanceled}, now).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormStore) ExtendOrder(id uint, prevEnd, newEnd time.Time, transactionID uint) (bool, error) {
	res := s.db.Model(&billing.Order{}).
		Where("id = ? AND end_date = ?", id, prevEnd).
		Updates(map[string]interface{}{
			"end_date":       newEnd,
			"transaction_id": transactionID,
			"status":         billing.OrderActive,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) ExpireOrder(id uint, prevEnd time.Time) (bool, error) {
	res := s.db.Model(&billing.Order{}).
		Where("id = ? AND end_date = ? AND status NOT IN ?",
			id, prevEnd, []string{billing.OrderExpired, billing.OrderCanceled}).
		Update("status", billing.OrderExpired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) CreateSubscriptionSession(session *billing.SubscriptionSession) error {
	return s.db.Create(session).Error
}

func (s *gormStore) GetActiveSubscriptionSession(token string, subscriptionID uint, now time.Time) (*billing.SubscriptionSession, error) {
	var session billing.SubscriptionSession
	err := s.db.
		Where("token = ? AND subscription_id = ? AND is_used = ? AND expires_at > ?",
			token, subscriptionID, false, now).
		First(&session).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (s *gormStore) MarkSessionUsed(id uint) error {
	return s.db.Model(&billing.SubscriptionSession{}).
		Where("id = ?", id).
		Update("is_used", true).Error
}

func (s *gormStore) AppendEvent(ev *billing.SubscriptionEvent) error {
	return s.db.Create(ev).Error
}

func (s *gormStore) HasEvent(provider, providerEventID string) (bool, error) {
	var count int64
	if err := s.db.Model(&billing.SubscriptionEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
