package subscriptions

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"
	"hashrent-backend/internal/payments"
	"hashrent-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionStoreStub struct {
	store.Store

	sub      *billing.Subscription
	sessions []*billing.SubscriptionSession
	events   []*billing.SubscriptionEvent
}

func (s *sessionStoreStub) InTx(fn func(store.Store) error) error { return fn(s) }

func (s *sessionStoreStub) GetSubscription(id uint) (*billing.Subscription, error) {
	if s.sub != nil && s.sub.ID == id {
		return s.sub, nil
	}
	return nil, store.ErrNotFound
}

func (s *sessionStoreStub) CreateSubscriptionSession(session *billing.SubscriptionSession) error {
	session.ID = uint(len(s.sessions) + 1)
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *sessionStoreStub) GetActiveSubscriptionSession(token string, subscriptionID uint, now time.Time) (*billing.SubscriptionSession, error) {
	for _, sess := range s.sessions {
		if sess.Token == token && sess.SubscriptionID == subscriptionID && !sess.IsUsed && sess.ExpiresAt.After(now) {
			return sess, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *sessionStoreStub) MarkSessionUsed(id uint) error {
	for _, sess := range s.sessions {
		if sess.ID == id {
			sess.IsUsed = true
		}
	}
	return nil
}

func (s *sessionStoreStub) UpdateSubscription(id uint, updates map[string]interface{}) error {
	if s.sub != nil && s.sub.ID == id {
		if v, ok := updates["status"].(string); ok {
			s.sub.Status = v
		}
		if v, ok := updates["cancel_at_period_end"].(bool); ok {
			s.sub.CancelAtPeriodEnd = v
		}
	}
	return nil
}

func (s *sessionStoreStub) AppendEvent(ev *billing.SubscriptionEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func newSessionHandler(s store.Store) *Handler {
	return NewHandler(s, payments.NewRegistry(),
		"https://billing.stripe.com/p/login/shared",
		"https://app.example.com",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newCryptoSubscription() *billing.Subscription {
	return &billing.Subscription{
		ID: 5, UserID: 7, PlanID: 1,
		Status:        billing.SubActive,
		PaymentMethod: "nowpayments",
		Plan:          plans.Plan{ID: 1, Name: "p1"},
	}
}

func postJSON(t *testing.T, handler gin.HandlerFunc, body string, userID uint) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		c.Set("user_id", userID)
	}
	handler(c)
	return w
}

func getWithQuery(t *testing.T, handler gin.HandlerFunc, query string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	handler(c)
	return w
}

func TestManageMintsSessionForCryptoSubscription(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	h := newSessionHandler(s)

	w := postJSON(t, h.CreateManageSession, `{"subscriptionId":5}`, 7)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, s.sessions, 1)
	sess := s.sessions[0]
	assert.NotEmpty(t, sess.Token)
	assert.False(t, sess.IsUsed)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), sess.ExpiresAt, time.Minute)
	assert.Contains(t, w.Body.String(), sess.Token)
}

func TestManageDelegatesStripeToSharedPortal(t *testing.T) {
	sub := newCryptoSubscription()
	sub.PaymentMethod = "stripe"
	s := &sessionStoreStub{sub: sub}
	h := newSessionHandler(s)

	w := postJSON(t, h.CreateManageSession, `{"subscriptionId":5}`, 7)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://billing.stripe.com/p/login/shared")
	assert.Empty(t, s.sessions)
}

func TestManageRejectsNonOwner(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	h := newSessionHandler(s)

	w := postJSON(t, h.CreateManageSession, `{"subscriptionId":5}`, 99)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, s.sessions)
}

func TestValidateConsumesTokenExactlyOnce(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	h := newSessionHandler(s)

	require.Equal(t, http.StatusOK, postJSON(t, h.CreateManageSession, `{"subscriptionId":5}`, 7).Code)
	token := s.sessions[0].Token

	w := getWithQuery(t, h.ValidateManageSession, fmt.Sprintf("token=%s&subscriptionId=5", token))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"active"`)

	// second use is rejected
	w = getWithQuery(t, h.ValidateManageSession, fmt.Sprintf("token=%s&subscriptionId=5", token))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	s.sessions = append(s.sessions, &billing.SubscriptionSession{
		ID: 1, UserID: 7, SubscriptionID: 5,
		Token:     "stale-token",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	h := newSessionHandler(s)

	w := getWithQuery(t, h.ValidateManageSession, "token=stale-token&subscriptionId=5")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateRejectsMalformedSubscriptionID(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	h := newSessionHandler(s)

	require.Equal(t, http.StatusOK, postJSON(t, h.CreateManageSession, `{"subscriptionId":5}`, 7).Code)
	token := s.sessions[0].Token

	// a numeric prefix with trailing garbage must not resolve to an id
	w := getWithQuery(t, h.ValidateManageSession, fmt.Sprintf("token=%s&subscriptionId=5abc", token))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, s.sessions[0].IsUsed)
}

func TestCancelBySessionToken(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	h := newSessionHandler(s)

	require.Equal(t, http.StatusOK, postJSON(t, h.CreateManageSession, `{"subscriptionId":5}`, 7).Code)
	token := s.sessions[0].Token

	w := postJSON(t, h.Cancel, fmt.Sprintf(`{"subscriptionId":5,"token":"%s"}`, token), 0)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, billing.SubCanceled, s.sub.Status)
	assert.True(t, s.sessions[0].IsUsed)
	require.Len(t, s.events, 1)
	assert.Equal(t, "canceled", s.events[0].EventType)
}

func TestCancelByOwnerWithoutToken(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	h := newSessionHandler(s)

	w := postJSON(t, h.Cancel, `{"subscriptionId":5}`, 7)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, billing.SubCanceled, s.sub.Status)
}

func TestCancelRejectsStrangerWithoutToken(t *testing.T) {
	s := &sessionStoreStub{sub: newCryptoSubscription()}
	h := newSessionHandler(s)

	w := postJSON(t, h.Cancel, `{"subscriptionId":5}`, 99)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, billing.SubActive, s.sub.Status)
}
