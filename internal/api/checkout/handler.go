package checkout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/domain/users"
	"hashrent-backend/internal/payments"
	"hashrent-backend/internal/store"

	"github.com/gin-gonic/gin"
)

const providerTimeout = 30 * time.Second

type Handler struct {
	store     store.Store
	providers *payments.Registry
	log       *slog.Logger
}

func NewHandler(s store.Store, providers *payments.Registry, log *slog.Logger) *Handler {
	return &Handler{store: s, providers: providers, log: log}
}

type checkoutRequest struct {
	PlanID        uint   `json:"planId"`
	CryptoAddress string `json:"cryptoAddress"`
	PaymentMethod string `json:"paymentMethod"`
}

// Checkout validates a purchase request and opens a provider checkout
// session. Validation order: identity, plan, payout address, provider; the
// first failed check wins and nothing is persisted.
func (h *Handler) Checkout(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	var body checkoutRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.PlanID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid planId"})
		return
	}

	plan, err := h.store.GetPlan(body.PlanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan"})
		return
	}

	if err := validatePayoutAddress(body.CryptoAddress); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payout address"})
		return
	}

	provider, ok := h.providers.Get(body.PaymentMethod)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported payment method"})
		return
	}

	user, err := h.store.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	session, tx, err := h.initiate(c.Request.Context(), user, plan, provider, &body.CryptoAddress)
	if err != nil {
		h.log.Error("checkout failed",
			"user_id", user.ID, "plan_id", plan.ID, "provider", provider.Name(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
		return
	}

	if provider.Name() == payments.ProviderNOWPayments {
		c.JSON(http.StatusOK, gin.H{
			"invoiceUrl":    session.RedirectURL,
			"payAddress":    session.PayAddress,
			"payAmount":     session.PayAmount,
			"transactionId": tx.ID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":     session.ProviderSessionID,
		"url":           session.RedirectURL,
		"transactionId": tx.ID,
	})
}

type checkoutSessionRequest struct {
	PlanID uint `json:"planId"`
}

// CreateCheckoutSession is the server-to-server variant: a card-network
// session straight from a plan id. Thin caller of the same initiator with
// the provider pinned to Stripe.
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	var body checkoutSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.PlanID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid planId"})
		return
	}

	plan, err := h.store.GetPlan(body.PlanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan"})
		return
	}

	provider, ok := h.providers.Get(payments.ProviderStripe)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stripe not configured"})
		return
	}

	user, err := h.store.GetUser(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	session, _, err := h.initiate(c.Request.Context(), user, plan, provider, nil)
	if err != nil {
		h.log.Error("checkout session failed",
			"user_id", user.ID, "plan_id", plan.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": session.ProviderSessionID})
}

// initiate persists the pending transaction (and incomplete subscription for
// recurring plans), calls the provider, and records the returned session
// handle. A provider failure after the inserts leaves the transaction
// pending; the scheduled reconciler times those out.
func (h *Handler) initiate(ctx context.Context, user *users.User, plan *plans.Plan, provider payments.Provider, payoutAddress *string) (*payments.CheckoutSession, *billing.Transaction, error) {
	paymentType := billing.PaymentOneTime
	if plan.IsSubscription {
		paymentType = billing.PaymentSubscription
	}

	tx := &billing.Transaction{
		UserID:      user.ID,
		PlanID:      plan.ID,
		PaymentType: paymentType,
		Amount:      plan.Price,
		Currency:    plan.Currency,
		Status:      billing.TxPending,
		Provider:    provider.Name(),
	}
	var sub *billing.Subscription

	err := h.store.InTx(func(s store.Store) error {
		if payoutAddress != nil {
			if err := s.SetPayoutAddress(user.ID, *payoutAddress); err != nil {
				return err
			}
		}
		if plan.IsSubscription {
			sub = &billing.Subscription{
				UserID:        user.ID,
				PlanID:        plan.ID,
				Status:        billing.SubIncomplete,
				PaymentMethod: provider.Name(),
			}
			if err := s.CreateSubscription(sub); err != nil {
				return err
			}
			tx.SubscriptionID = &sub.ID
		}
		return s.CreateTransaction(tx)
	})
	if err != nil {
		return nil, nil, err
	}

	buyer := payments.Buyer{
		UserID:        user.ID,
		Email:         user.Email,
		TransactionID: tx.ID,
	}
	if sub != nil {
		buyer.SubscriptionID = &sub.ID
	}

	callCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	session, err := provider.CreateCheckout(callCtx, plan, buyer)
	if err != nil {
		return nil, nil, err
	}

	err = h.store.InTx(func(s store.Store) error {
		if err := s.SetTransactionProviderRef(tx.ID, session.ProviderSessionID); err != nil {
			return err
		}
		ev := &billing.SubscriptionEvent{
			TransactionID:   &tx.ID,
			Provider:        provider.Name(),
			ProviderEventID: "created:" + session.ProviderSessionID,
			EventType:       "created",
		}
		if sub != nil {
			ev.SubscriptionID = &sub.ID
		}
		return s.AppendEvent(ev)
	})
	if err != nil {
		return nil, nil, err
	}

	return session, tx, nil
}
