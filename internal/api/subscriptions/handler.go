package subscriptions

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/payments"
	"hashrent-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// management links for providers without a native portal expire quickly
const sessionTTL = 30 * time.Minute

type Handler struct {
	store     store.Store
	providers *payments.Registry
	portalURL string
	appURL    string
	log       *slog.Logger
}

func NewHandler(s store.Store, providers *payments.Registry, portalURL, appURL string, log *slog.Logger) *Handler {
	return &Handler{store: s, providers: providers, portalURL: portalURL, appURL: appURL, log: log}
}

type manageRequest struct {
	SubscriptionID uint `json:"subscriptionId"`
}

// CreateManageSession returns a management URL for the caller's
// subscription. Card subscriptions are delegated to the shared provider
// portal; crypto subscriptions get a minted short-lived session link.
func (h *Handler) CreateManageSession(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
		return
	}

	var body manageRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.SubscriptionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid subscriptionId"})
		return
	}

	sub, err := h.store.GetSubscription(body.SubscriptionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}
	if sub.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	if sub.PaymentMethod == payments.ProviderStripe {
		if h.portalURL == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Billing portal not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": h.portalURL})
		return
	}

	token := uuid.NewString()
	session := &billing.SubscriptionSession{
		UserID:         userID,
		SubscriptionID: sub.ID,
		Provider:       sub.PaymentMethod,
		Token:          token,
		URL:            fmt.Sprintf("%s/subscriptions/manage?token=%s&subscriptionId=%d", h.appURL, token, sub.ID),
		ExpiresAt:      time.Now().Add(sessionTTL),
	}
	if err := h.store.CreateSubscriptionSession(session); err != nil {
		h.log.Error("failed to create subscription session",
			"subscription_id", sub.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create management session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       session.URL,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
	})
}

// ValidateManageSession consumes a minted token and returns the
// subscription snapshot. A token is accepted at most once.
func (h *Handler) ValidateManageSession(c *gin.Context) {
	token := c.Query("token")
	subscriptionID := parseUintQuery(c, "subscriptionId")
	if token == "" || subscriptionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing token or subscriptionId"})
		return
	}

	session, err := h.store.GetActiveSubscriptionSession(token, subscriptionID, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid or expired session"})
		return
	}

	sub, err := h.store.GetSubscription(session.SubscriptionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	if err := h.store.MarkSessionUsed(session.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to consume session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                 sub.ID,
		"status":             sub.Status,
		"plan":               sub.Plan.Name,
		"paymentMethod":      sub.PaymentMethod,
		"currentPeriodStart": sub.CurrentPeriodStart,
		"currentPeriodEnd":   sub.CurrentPeriodEnd,
		"cancelAtPeriodEnd":  sub.CancelAtPeriodEnd,
	})
}

type cancelRequest struct {
	SubscriptionID uint   `json:"subscriptionId"`
	Token          string `json:"token"`
}

// Cancel cancels a subscription, authorized either by a minted session
// token or by the authenticated owner. Cancels provider-side first when the
// provider holds subscription state.
func (h *Handler) Cancel(c *gin.Context) {
	var body cancelRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.SubscriptionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid subscriptionId"})
		return
	}

	sub, err := h.store.GetSubscription(body.SubscriptionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	var session *billing.SubscriptionSession
	if body.Token != "" {
		session, err = h.store.GetActiveSubscriptionSession(body.Token, sub.ID, time.Now())
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invalid or expired session"})
			return
		}
	} else {
		userID := c.GetUint("user_id")
		if userID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not identified"})
			return
		}
		if sub.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
			return
		}
	}

	if sub.ProviderSubscriptionID != nil && *sub.ProviderSubscriptionID != "" {
		if provider, ok := h.providers.Get(sub.PaymentMethod); ok {
			if canceler, ok := provider.(payments.SubscriptionCanceler); ok {
				if err := canceler.CancelSubscription(*sub.ProviderSubscriptionID); err != nil {
					h.log.Error("provider-side cancel failed",
						"subscription_id", sub.ID, "provider", sub.PaymentMethod, "error", err)
					c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription"})
					return
				}
			}
		}
	}

	err = h.store.InTx(func(s store.Store) error {
		if err := s.UpdateSubscription(sub.ID, map[string]interface{}{
			"status":               billing.SubCanceled,
			"cancel_at_period_end": true,
		}); err != nil {
			return err
		}
		if session != nil {
			if err := s.MarkSessionUsed(session.ID); err != nil {
				return err
			}
		}
		return s.AppendEvent(&billing.SubscriptionEvent{
			SubscriptionID:  &sub.ID,
			Provider:        sub.PaymentMethod,
			ProviderEventID: "local:" + uuid.NewString(),
			EventType:       "canceled",
		})
	})
	if err != nil {
		h.log.Error("failed to cancel subscription", "subscription_id", sub.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

func parseUintQuery(c *gin.Context, key string) uint {
	v, err := strconv.ParseUint(c.Query(key), 10, 32)
	if err != nil {
		return 0
	}
	return uint(v)
}
