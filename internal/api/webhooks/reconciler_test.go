package webhooks

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/payments"
	"hashrent-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerStoreStub struct {
	store.Store

	plan   *plans.Plan
	tx     *billing.Transaction
	sub    *billing.Subscription
	orders []*billing.Order
	events map[string]bool
}

func newReconcilerStoreStub() *reconcilerStoreStub {
	return &reconcilerStoreStub{events: map[string]bool{}}
}

func (s *reconcilerStoreStub) InTx(fn func(store.Store) error) error { return fn(s) }

func (s *reconcilerStoreStub) HasEvent(provider, eventID string) (bool, error) {
	return s.events[provider+":"+eventID], nil
}

func (s *reconcilerStoreStub) AppendEvent(ev *billing.SubscriptionEvent) error {
	s.events[ev.Provider+":"+ev.ProviderEventID] = true
	return nil
}

func (s *reconcilerStoreStub) GetTransactionByProviderRef(provider, ref string) (*billing.Transaction, error) {
	if s.tx != nil && s.tx.Provider == provider && s.tx.ProviderRef != nil && *s.tx.ProviderRef == ref {
		return s.tx, nil
	}
	return nil, store.ErrNotFound
}

func (s *reconcilerStoreStub) GetPlan(id uint) (*plans.Plan, error) {
	if s.plan != nil && s.plan.ID == id {
		return s.plan, nil
	}
	return nil, store.ErrNotFound
}

func (s *reconcilerStoreStub) GetTransaction(id uint) (*billing.Transaction, error) {
	if s.tx != nil && s.tx.ID == id {
		return s.tx, nil
	}
	return nil, store.ErrNotFound
}

func (s *reconcilerStoreStub) FinishTransaction(id uint, status string) (bool, error) {
	if s.tx == nil || s.tx.ID != id || s.tx.Status != billing.TxPending {
		return false, nil
	}
	s.tx.Status = status
	return true, nil
}

func (s *reconcilerStoreStub) OrderExistsForTransaction(transactionID uint) (bool, error) {
	for _, o := range s.orders {
		if o.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *reconcilerStoreStub) CreateOrder(order *billing.Order) error {
	s.orders = append(s.orders, order)
	return nil
}

func (s *reconcilerStoreStub) GetSubscriptionByProviderRef(ref string) (*billing.Subscription, error) {
	if s.sub != nil && s.sub.ProviderSubscriptionID != nil && *s.sub.ProviderSubscriptionID == ref {
		return s.sub, nil
	}
	return nil, store.ErrNotFound
}

func (s *reconcilerStoreStub) UpdateSubscription(id uint, updates map[string]interface{}) error {
	if s.sub == nil || s.sub.ID != id {
		return store.ErrNotFound
	}
	if v, ok := updates["status"].(string); ok {
		s.sub.Status = v
	}
	if v, ok := updates["current_period_start"].(time.Time); ok {
		s.sub.CurrentPeriodStart = &v
	}
	if v, ok := updates["current_period_end"].(time.Time); ok {
		s.sub.CurrentPeriodEnd = &v
	}
	if v, ok := updates["provider_subscription_id"].(string); ok {
		s.sub.ProviderSubscriptionID = &v
	}
	if v, ok := updates["cancel_at_period_end"].(bool); ok {
		s.sub.CancelAtPeriodEnd = v
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
func uintPtr(v uint) *uint    { return &v }

// fixtureSubscriptionCheckout mirrors the monthly subscription plan checkout:
// a pending transaction linked to an incomplete subscription, with the
// provider session already recorded.
func fixtureSubscriptionCheckout(s *reconcilerStoreStub) {
	s.plan = &plans.Plan{ID: 1, Name: "p1", Price: 109, Currency: "USD", Duration: "1m", IsSubscription: true}
	s.sub = &billing.Subscription{ID: 5, UserID: 7, PlanID: 1, Status: billing.SubIncomplete, PaymentMethod: "stripe"}
	s.tx = &billing.Transaction{
		ID: 42, UserID: 7, PlanID: 1,
		PaymentType: billing.PaymentSubscription,
		Amount:      109, Currency: "USD",
		Status:   billing.TxPending,
		Provider: "stripe",
		ProviderRef:    strPtr("cs_test_123"),
		SubscriptionID: uintPtr(5),
	}
}

func TestCheckoutCompletedActivatesEverything(t *testing.T) {
	s := newReconcilerStoreStub()
	fixtureSubscriptionCheckout(s)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := NewReconciler(s, testLogger())
	r.now = func() time.Time { return now }

	ev := &payments.Event{
		Type:            payments.EventCheckoutCompleted,
		ProviderEventID: "evt_1",
		ProviderRef:     "cs_test_123",
		SubscriptionRef: "sub_abc",
	}

	result, err := r.Apply("stripe", ev)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	assert.Equal(t, billing.TxCompleted, s.tx.Status)
	assert.Equal(t, billing.SubActive, s.sub.Status)
	require.NotNil(t, s.sub.CurrentPeriodEnd)
	assert.Equal(t, now.AddDate(0, 1, 0), *s.sub.CurrentPeriodEnd)
	assert.Equal(t, "sub_abc", *s.sub.ProviderSubscriptionID)

	require.Len(t, s.orders, 1)
	order := s.orders[0]
	assert.Equal(t, billing.OrderActive, order.Status)
	assert.Equal(t, now, order.StartDate)
	assert.Equal(t, now.AddDate(0, 1, 0), order.EndDate)
	assert.True(t, order.AutoRenew)
	assert.False(t, order.EndDate.Before(order.StartDate))
}

func TestDuplicateEventIsSuppressed(t *testing.T) {
	s := newReconcilerStoreStub()
	fixtureSubscriptionCheckout(s)

	r := NewReconciler(s, testLogger())
	ev := &payments.Event{
		Type:            payments.EventCheckoutCompleted,
		ProviderEventID: "evt_1",
		ProviderRef:     "cs_test_123",
	}

	result, err := r.Apply("stripe", ev)
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)

	result, err = r.Apply("stripe", ev)
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, result)

	assert.Len(t, s.orders, 1)
}

func TestRedeliveryWithFreshEventIDCreatesNoSecondOrder(t *testing.T) {
	s := newReconcilerStoreStub()
	fixtureSubscriptionCheckout(s)

	r := NewReconciler(s, testLogger())

	_, err := r.Apply("stripe", &payments.Event{
		Type: payments.EventCheckoutCompleted, ProviderEventID: "evt_1", ProviderRef: "cs_test_123",
	})
	require.NoError(t, err)

	result, err := r.Apply("stripe", &payments.Event{
		Type: payments.EventCheckoutCompleted, ProviderEventID: "evt_2", ProviderRef: "cs_test_123",
	})
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, result)
	assert.Len(t, s.orders, 1)
}

func TestRedeliveryDoesNotShiftSubscriptionWindow(t *testing.T) {
	s := newReconcilerStoreStub()
	fixtureSubscriptionCheckout(s)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := NewReconciler(s, testLogger())
	r.now = func() time.Time { return now }

	_, err := r.Apply("stripe", &payments.Event{
		Type: payments.EventCheckoutCompleted, ProviderEventID: "evt_1", ProviderRef: "cs_test_123",
	})
	require.NoError(t, err)
	require.NotNil(t, s.sub.CurrentPeriodEnd)
	firstEnd := *s.sub.CurrentPeriodEnd

	r.now = func() time.Time { return now.Add(48 * time.Hour) }
	_, err = r.Apply("stripe", &payments.Event{
		Type: payments.EventCheckoutCompleted, ProviderEventID: "evt_2", ProviderRef: "cs_test_123",
	})
	require.NoError(t, err)

	assert.Equal(t, firstEnd, *s.sub.CurrentPeriodEnd)
}

func TestLatePaymentAfterExpiryGrantsNothing(t *testing.T) {
	s := newReconcilerStoreStub()
	s.plan = &plans.Plan{ID: 1, Duration: "30d", IsSubscription: true}
	s.sub = &billing.Subscription{ID: 5, UserID: 7, PlanID: 1, Status: billing.SubIncomplete, PaymentMethod: "nowpayments"}
	s.tx = &billing.Transaction{
		ID: 42, UserID: 7, PlanID: 1,
		PaymentType: billing.PaymentSubscription,
		Status:      billing.TxPending, Provider: "nowpayments",
		ProviderRef:    strPtr("6287262963"),
		SubscriptionID: uintPtr(5),
	}

	r := NewReconciler(s, testLogger())

	_, err := r.Apply("nowpayments", &payments.Event{
		Type: payments.EventInvoiceExpired, ProviderEventID: "5077125:expired", ProviderRef: "6287262963",
	})
	require.NoError(t, err)
	require.Equal(t, billing.TxFailed, s.tx.Status)

	// the "finished" IPN lands after expiry under its own event id
	result, err := r.Apply("nowpayments", &payments.Event{
		Type: payments.EventInvoicePaid, ProviderEventID: "5077125:finished", ProviderRef: "6287262963",
	})
	require.NoError(t, err)

	assert.Equal(t, ResultApplied, result)
	assert.Empty(t, s.orders)
	assert.Equal(t, billing.TxFailed, s.tx.Status)
	assert.Equal(t, billing.SubIncomplete, s.sub.Status)
	assert.True(t, s.events["nowpayments:5077125:finished"])
}

func TestTerminalTransactionNeverReverts(t *testing.T) {
	s := newReconcilerStoreStub()
	fixtureSubscriptionCheckout(s)
	s.tx.Status = billing.TxCompleted

	r := NewReconciler(s, testLogger())

	_, err := r.Apply("stripe", &payments.Event{
		Type: payments.EventCheckoutCanceled, ProviderEventID: "evt_9", ProviderRef: "cs_test_123",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.TxCompleted, s.tx.Status)
}

func TestExpiredInvoiceFailsPendingTransaction(t *testing.T) {
	s := newReconcilerStoreStub()
	s.plan = &plans.Plan{ID: 1, Duration: "30d"}
	s.tx = &billing.Transaction{
		ID: 42, UserID: 7, PlanID: 1,
		Status: billing.TxPending, Provider: "nowpayments",
		ProviderRef: strPtr("6287262963"),
	}

	r := NewReconciler(s, testLogger())

	result, err := r.Apply("nowpayments", &payments.Event{
		Type: payments.EventInvoiceExpired, ProviderEventID: "5077125:expired", ProviderRef: "6287262963",
	})
	require.NoError(t, err)
	assert.Equal(t, ResultApplied, result)
	assert.Equal(t, billing.TxFailed, s.tx.Status)
	assert.Empty(t, s.orders)
}

func TestSubscriptionCanceledEvent(t *testing.T) {
	s := newReconcilerStoreStub()
	s.sub = &billing.Subscription{
		ID: 5, Status: billing.SubActive,
		ProviderSubscriptionID: strPtr("sub_abc"),
	}

	r := NewReconciler(s, testLogger())

	_, err := r.Apply("stripe", &payments.Event{
		Type:              payments.EventSubscriptionCanceled,
		ProviderEventID:   "evt_c",
		SubscriptionRef:   "sub_abc",
		CancelAtPeriodEnd: true,
	})
	require.NoError(t, err)

	assert.Equal(t, billing.SubCanceled, s.sub.Status)
	assert.True(t, s.sub.CancelAtPeriodEnd)
}

func TestPaymentFailedMarksSubscriptionPastDue(t *testing.T) {
	s := newReconcilerStoreStub()
	s.sub = &billing.Subscription{
		ID: 5, Status: billing.SubActive,
		ProviderSubscriptionID: strPtr("sub_abc"),
	}

	r := NewReconciler(s, testLogger())

	_, err := r.Apply("stripe", &payments.Event{
		Type: payments.EventInvoicePaymentFailed, ProviderEventID: "evt_f", SubscriptionRef: "sub_abc",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.SubPastDue, s.sub.Status)
}

func TestUnknownReferenceIsRejected(t *testing.T) {
	s := newReconcilerStoreStub()

	r := NewReconciler(s, testLogger())

	_, err := r.Apply("stripe", &payments.Event{
		Type: payments.EventCheckoutCompleted, ProviderEventID: "evt_x", ProviderRef: "cs_from_other_env",
	})
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Empty(t, s.orders)
}

func TestIgnoredEventIsAcknowledged(t *testing.T) {
	s := newReconcilerStoreStub()
	r := NewReconciler(s, testLogger())

	result, err := r.Apply("stripe", &payments.Event{Type: payments.EventIgnored, ProviderEventID: "evt_i"})
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, result)
	assert.False(t, s.events["stripe:evt_i"])
}
