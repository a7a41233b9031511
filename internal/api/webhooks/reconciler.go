package webhooks

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/payments"
	"hashrent-backend/internal/store"
)

// ErrUnknownReference marks an event pointing at a transaction or
// subscription this environment has never seen (stale or cross-environment
// webhook).
var ErrUnknownReference = errors.New("event references unknown transaction or subscription")

type Result string

const (
	ResultApplied   Result = "applied"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

// Reconciler applies normalized provider events to transaction,
// subscription and order state exactly once per real-world event.
type Reconciler struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewReconciler(s store.Store, log *slog.Logger) *Reconciler {
	return &Reconciler{store: s, log: log, now: time.Now}
}

func (r *Reconciler) Apply(provider string, ev *payments.Event) (Result, error) {
	if ev.Type == payments.EventIgnored {
		return ResultIgnored, nil
	}

	seen, err := r.store.HasEvent(provider, ev.ProviderEventID)
	if err != nil {
		return "", err
	}
	if seen {
		return ResultDuplicate, nil
	}

	switch ev.Type {
	case payments.EventCheckoutCompleted, payments.EventInvoicePaid:
		err = r.applyPayment(provider, ev)
	case payments.EventCheckoutCanceled, payments.EventInvoiceExpired:
		err = r.applyPaymentFailure(provider, ev)
	case payments.EventSubscriptionCanceled:
		err = r.applyCancellation(provider, ev)
	case payments.EventSubscriptionUpdated:
		err = r.applyUpdate(provider, ev)
	case payments.EventInvoicePaymentFailed:
		err = r.applyPastDue(provider, ev)
	case payments.EventInvoicePartiallyPaid:
		err = r.applyPartialPayment(provider, ev)
	default:
		r.log.Warn("unhandled event type", "provider", provider, "type", ev.Type)
		return ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}
	return ResultApplied, nil
}

// applyPayment completes the transaction, creates the order and activates
// the linked subscription. The order is created at most once per
// transaction regardless of how many payment events arrive.
func (r *Reconciler) applyPayment(provider string, ev *payments.Event) error {
	tx, err := r.store.GetTransactionByProviderRef(provider, ev.ProviderRef)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: ref=%s", ErrUnknownReference, ev.ProviderRef)
	}
	if err != nil {
		return err
	}

	plan, err := r.store.GetPlan(tx.PlanID)
	if err != nil {
		return err
	}

	return r.store.InTx(func(s store.Store) error {
		transitioned, err := s.FinishTransaction(tx.ID, billing.TxCompleted)
		if err != nil {
			return err
		}
		if !transitioned {
			// The transaction was already terminal. A completed one is a
			// provider redelivery under a fresh event id; anything else is
			// a late payment against a failed invoice and grants nothing.
			current, err := s.GetTransaction(tx.ID)
			if err != nil {
				return err
			}
			if current.Status != billing.TxCompleted {
				r.log.Warn("payment event for terminal transaction",
					"provider", provider, "transaction_id", tx.ID,
					"status", current.Status, "event_id", ev.ProviderEventID)
				return s.AppendEvent(r.auditEvent(provider, ev, "stale_payment", &tx.ID, tx.SubscriptionID))
			}
		}

		exists, err := s.OrderExistsForTransaction(tx.ID)
		if err != nil {
			return err
		}

		now := r.now()
		periodEnd, ok := plan.NextPeriodEnd(now)
		if !ok {
			r.log.Warn("unrecognized plan duration, defaulting to 30 days",
				"plan_id", plan.ID, "duration", plan.Duration)
		}

		eventType := "renewed"
		if !exists {
			eventType = "paid"
			order := &billing.Order{
				UserID:         tx.UserID,
				PlanID:         tx.PlanID,
				TransactionID:  tx.ID,
				SubscriptionID: tx.SubscriptionID,
				Status:         billing.OrderActive,
				StartDate:      now,
				EndDate:        periodEnd,
				AutoRenew:      tx.PaymentType == billing.PaymentSubscription,
			}
			if err := s.CreateOrder(order); err != nil {
				return err
			}
		}

		if tx.SubscriptionID != nil && transitioned {
			updates := map[string]interface{}{
				"status":               billing.SubActive,
				"current_period_start": now,
				"current_period_end":   periodEnd,
			}
			if !ev.PeriodEnd.IsZero() {
				updates["current_period_end"] = ev.PeriodEnd
			}
			if ev.SubscriptionRef != "" {
				updates["provider_subscription_id"] = ev.SubscriptionRef
			}
			if err := s.UpdateSubscription(*tx.SubscriptionID, updates); err != nil {
				return err
			}
		}

		return s.AppendEvent(r.auditEvent(provider, ev, eventType, &tx.ID, tx.SubscriptionID))
	})
}

func (r *Reconciler) applyPaymentFailure(provider string, ev *payments.Event) error {
	tx, err := r.store.GetTransactionByProviderRef(provider, ev.ProviderRef)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: ref=%s", ErrUnknownReference, ev.ProviderRef)
	}
	if err != nil {
		return err
	}

	return r.store.InTx(func(s store.Store) error {
		if _, err := s.FinishTransaction(tx.ID, billing.TxFailed); err != nil {
			return err
		}
		return s.AppendEvent(r.auditEvent(provider, ev, "failed", &tx.ID, tx.SubscriptionID))
	})
}

func (r *Reconciler) applyCancellation(provider string, ev *payments.Event) error {
	sub, err := r.store.GetSubscriptionByProviderRef(ev.SubscriptionRef)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: subscription ref=%s", ErrUnknownReference, ev.SubscriptionRef)
	}
	if err != nil {
		return err
	}

	return r.store.InTx(func(s store.Store) error {
		updates := map[string]interface{}{
			"status":               billing.SubCanceled,
			"cancel_at_period_end": ev.CancelAtPeriodEnd,
		}
		if !ev.PeriodEnd.IsZero() {
			updates["current_period_end"] = ev.PeriodEnd
		}
		if err := s.UpdateSubscription(sub.ID, updates); err != nil {
			return err
		}
		return s.AppendEvent(r.auditEvent(provider, ev, "canceled", nil, &sub.ID))
	})
}

func (r *Reconciler) applyUpdate(provider string, ev *payments.Event) error {
	sub, err := r.store.GetSubscriptionByProviderRef(ev.SubscriptionRef)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: subscription ref=%s", ErrUnknownReference, ev.SubscriptionRef)
	}
	if err != nil {
		return err
	}

	return r.store.InTx(func(s store.Store) error {
		updates := map[string]interface{}{
			"cancel_at_period_end": ev.CancelAtPeriodEnd,
		}
		if !ev.PeriodEnd.IsZero() {
			updates["current_period_end"] = ev.PeriodEnd
		}
		if ev.SubscriptionStatus != "" {
			updates["status"] = ev.SubscriptionStatus
		}
		if err := s.UpdateSubscription(sub.ID, updates); err != nil {
			return err
		}
		return s.AppendEvent(r.auditEvent(provider, ev, "updated", nil, &sub.ID))
	})
}

func (r *Reconciler) applyPastDue(provider string, ev *payments.Event) error {
	sub, err := r.store.GetSubscriptionByProviderRef(ev.SubscriptionRef)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: subscription ref=%s", ErrUnknownReference, ev.SubscriptionRef)
	}
	if err != nil {
		return err
	}

	return r.store.InTx(func(s store.Store) error {
		if err := s.UpdateSubscription(sub.ID, map[string]interface{}{
			"status": billing.SubPastDue,
		}); err != nil {
			return err
		}
		return s.AppendEvent(r.auditEvent(provider, ev, "failed", nil, &sub.ID))
	})
}

// applyPartialPayment records the event for support diagnostics without
// transitioning any state; the invoice either completes or expires later.
func (r *Reconciler) applyPartialPayment(provider string, ev *payments.Event) error {
	tx, err := r.store.GetTransactionByProviderRef(provider, ev.ProviderRef)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: ref=%s", ErrUnknownReference, ev.ProviderRef)
	}
	if err != nil {
		return err
	}

	return r.store.AppendEvent(r.auditEvent(provider, ev, "partial", &tx.ID, tx.SubscriptionID))
}

func (r *Reconciler) auditEvent(provider string, ev *payments.Event, eventType string, txID, subID *uint) *billing.SubscriptionEvent {
	var payload *string
	if len(ev.Raw) > 0 {
		p := string(ev.Raw)
		payload = &p
	}
	return &billing.SubscriptionEvent{
		TransactionID:   txID,
		SubscriptionID:  subID,
		Provider:        provider,
		ProviderEventID: ev.ProviderEventID,
		EventType:       eventType,
		Payload:         payload,
	}
}
