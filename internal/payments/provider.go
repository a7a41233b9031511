package payments

import (
	"context"
	"fmt"
	"time"

	"hashrent-backend/internal/domain/plans"
)

// Normalized event types, independent of provider wire format.
const (
	EventCheckoutCompleted    = "checkout_completed"
	EventCheckoutCanceled     = "checkout_canceled"
	EventSubscriptionUpdated  = "subscription_updated"
	EventSubscriptionCanceled = "subscription_canceled"
	EventInvoicePaymentFailed = "invoice_payment_failed"
	EventInvoicePaid          = "invoice_paid"
	EventInvoicePartiallyPaid = "invoice_partially_paid"
	EventInvoiceExpired       = "invoice_expired"

	// EventIgnored marks provider events we acknowledge but never act on.
	EventIgnored = "ignored"
)

// Buyer carries the checkout context the initiator already persisted.
type Buyer struct {
	UserID         uint
	Email          string
	TransactionID  uint
	SubscriptionID *uint
}

// CheckoutSession is the provider-issued handle for an in-progress payment
// attempt plus where to send the customer.
type CheckoutSession struct {
	ProviderSessionID string
	RedirectURL       string

	// crypto invoices only
	PayAddress string
	PayAmount  float64
}

// Event is a provider callback normalized into the core's vocabulary.
type Event struct {
	Type              string
	ProviderEventID   string
	ProviderRef       string // checkout session / invoice id
	SubscriptionRef   string // provider-side subscription id
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool

	// provider-reported subscription status already mapped onto the
	// internal vocabulary; set for subscription_updated events
	SubscriptionStatus string

	Raw []byte
}

// Provider is the uniform adapter contract over payment providers. It never
// persists anything and never retries; both are the caller's responsibility.
type Provider interface {
	Name() string
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
	CreateCheckout(ctx context.Context, plan *plans.Plan, buyer Buyer) (*CheckoutSession, error)
	VerifyAndParse(rawBody []byte, signature string) (*Event, error)
}

// SubscriptionCanceler is implemented by providers that hold server-side
// subscription state which must be canceled remotely.
type SubscriptionCanceler interface {
	CancelSubscription(providerSubID string) error
}

// ProviderError wraps any non-2xx or malformed provider response.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// SignatureError marks a webhook whose signature failed verification.
type SignatureError struct {
	Provider string
	Err      error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s: signature verification failed: %v", e.Provider, e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// Registry maps provider names to adapters.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}
