package jobs

import (
	"errors"
	"log/slog"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/store"

	"github.com/robfig/cron/v3"
)

// pending transactions older than this were abandoned (timed-out provider
// call or a customer who never paid) and are failed out
const pendingTransactionTTL = 24 * time.Hour

// OrderReconciler derives order state from time and transaction history,
// independent of webhook delivery: activation, renewal detection, expiry,
// and stale pending-transaction cleanup.
type OrderReconciler struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewOrderReconciler(s store.Store, log *slog.Logger) *OrderReconciler {
	return &OrderReconciler{store: s, log: log, now: time.Now}
}

// Run executes one reconciliation pass and returns the number of orders
// touched. Failure on one order logs and moves on; it never aborts the
// batch.
func (r *OrderReconciler) Run() int {
	now := r.now()
	processed := 0

	activated, err := r.store.ActivateDueOrders(now)
	if err != nil {
		r.log.Error("order activation pass failed", "error", err)
	} else {
		processed += int(activated)
	}

	candidates, err := r.store.ExpiryCandidates(now)
	if err != nil {
		r.log.Error("failed to load expiry candidates", "error", err)
	}
	for i := range candidates {
		if r.reconcileOrder(&candidates[i]) {
			processed++
		}
	}

	r.expireStalePendings(now)

	return processed
}

// reconcileOrder extends an order past its end date when a later completed
// transaction exists for the same user and plan, otherwise expires it. Both
// writes are guarded on the end date read here, so a concurrent run cannot
// double-extend; on a lost race the order is skipped and retried next pass.
func (r *OrderReconciler) reconcileOrder(order *billing.Order) bool {
	renewal, err := r.store.LatestCompletedTransactionAfter(order.UserID, order.PlanID, order.EndDate)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		r.log.Error("renewal lookup failed", "order_id", order.ID, "error", err)
		return false
	}

	if renewal == nil {
		expired, err := r.store.ExpireOrder(order.ID, order.EndDate)
		if err != nil {
			r.log.Error("failed to expire order", "order_id", order.ID, "error", err)
			return false
		}
		if expired {
			r.log.Info("order expired", "order_id", order.ID, "end_date", order.EndDate)
		}
		return expired
	}

	plan, err := r.store.GetPlan(order.PlanID)
	if err != nil {
		r.log.Error("plan lookup failed", "order_id", order.ID, "plan_id", order.PlanID, "error", err)
		return false
	}

	newEnd, ok := plans.AddPeriod(order.EndDate, plan.Duration)
	if !ok {
		r.log.Warn("unrecognized plan duration, defaulting to 30 days",
			"plan_id", plan.ID, "duration", plan.Duration)
	}

	extended, err := r.store.ExtendOrder(order.ID, order.EndDate, newEnd, renewal.ID)
	if err != nil {
		r.log.Error("failed to extend order", "order_id", order.ID, "error", err)
		return false
	}
	if !extended {
		// end date moved under us, another run handled it
		return false
	}

	r.log.Info("order renewed",
		"order_id", order.ID, "transaction_id", renewal.ID, "new_end_date", newEnd)
	return true
}

func (r *OrderReconciler) expireStalePendings(now time.Time) {
	stale, err := r.store.StalePendingTransactions(now.Add(-pendingTransactionTTL))
	if err != nil {
		r.log.Error("failed to load stale pending transactions", "error", err)
		return
	}

	for i := range stale {
		tx := &stale[i]
		failed, err := r.store.FinishTransaction(tx.ID, billing.TxFailed)
		if err != nil {
			r.log.Error("failed to expire pending transaction", "transaction_id", tx.ID, "error", err)
			continue
		}
		if !failed {
			continue
		}

		if tx.SubscriptionID != nil {
			sub, err := r.store.GetSubscription(*tx.SubscriptionID)
			if err == nil && sub.Status == billing.SubIncomplete {
				if err := r.store.UpdateSubscription(sub.ID, map[string]interface{}{
					"status": billing.SubCanceled,
				}); err != nil {
					r.log.Error("failed to cancel incomplete subscription",
						"subscription_id", sub.ID, "error", err)
				}
			}
		}

		r.log.Info("expired stale pending transaction", "transaction_id", tx.ID)
	}
}

// Schedule registers the reconciler on a cron schedule with panic recovery
// and returns the started scheduler.
func Schedule(r *OrderReconciler, schedule string, log *slog.Logger) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	if _, err := c.AddFunc(schedule, func() {
		processed := r.Run()
		log.Info("order status reconciliation finished", "orders_processed", processed)
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
