package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hashrent-backend/internal/domain/billing"
	"hashrent-backend/internal/domain/plans"

	"github.com/stripe/stripe-go/v75"
	checkoutsession "github.com/stripe/stripe-go/v75/checkout/session"
	"github.com/stripe/stripe-go/v75/subscription"
	"github.com/stripe/stripe-go/v75/webhook"
)

const ProviderStripe = "stripe"

// StripeProvider creates card-network checkout sessions and parses Stripe
// webhook events into normalized events.
type StripeProvider struct {
	webhookSecret string
	appURL        string
}

func NewStripeProvider(secretKey, webhookSecret, appURL string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{webhookSecret: webhookSecret, appURL: appURL}
}

func (p *StripeProvider) Name() string { return ProviderStripe }

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

func (p *StripeProvider) CreateCheckout(ctx context.Context, plan *plans.Plan, buyer Buyer) (*CheckoutSession, error) {
	mode := stripe.CheckoutSessionModePayment
	if plan.IsSubscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		SuccessURL:        stripe.String(p.appURL + "/account"),
		CancelURL:         stripe.String(p.appURL + "/account?canceled=1"),
		Mode:              stripe.String(string(mode)),
		CustomerEmail:     stripe.String(buyer.Email),
		ClientReferenceID: stripe.String(fmt.Sprint(buyer.UserID)),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem(plan)},
	}

	metadata := map[string]string{
		"user_id":        fmt.Sprint(buyer.UserID),
		"plan_id":        fmt.Sprint(plan.ID),
		"transaction_id": fmt.Sprint(buyer.TransactionID),
	}
	if plan.IsSubscription {
		if buyer.SubscriptionID != nil {
			metadata["subscription_id"] = fmt.Sprint(*buyer.SubscriptionID)
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}
	}

	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, stripeError(err)
	}

	return &CheckoutSession{ProviderSessionID: s.ID, RedirectURL: s.URL}, nil
}

func lineItem(plan *plans.Plan) *stripe.CheckoutSessionLineItemParams {
	if plan.StripePriceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(plan.StripePriceID),
			Quantity: stripe.Int64(1),
		}
	}

	// plans synced without a Stripe price fall back to inline price data
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(plan.Currency),
		UnitAmount: stripe.Int64(int64(plan.Price * 100)),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(plan.Name),
		},
	}
	if plan.IsSubscription {
		interval, count := recurringInterval(plan.Duration)
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval:      stripe.String(interval),
			IntervalCount: stripe.Int64(count),
		}
	}
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: priceData,
		Quantity:  stripe.Int64(1),
	}
}

// recurringInterval maps a plan duration onto a Stripe billing interval, so
// a "30d" plan bills every 30 days rather than daily.
func recurringInterval(duration string) (string, int64) {
	n, unit, ok := plans.ParsePeriod(duration)
	if !ok {
		return "month", 1
	}
	switch unit {
	case 'd':
		return "day", int64(n)
	case 'y':
		return "year", int64(n)
	default:
		return "month", int64(n)
	}
}

func (p *StripeProvider) VerifyAndParse(rawBody []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(
		rawBody,
		signature,
		p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, &SignatureError{Provider: ProviderStripe, Err: err}
	}

	out := &Event{ProviderEventID: event.ID, Raw: rawBody}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, &ProviderError{Provider: ProviderStripe, Err: fmt.Errorf("parse checkout session: %w", err)}
		}
		out.ProviderRef = session.ID
		if session.Subscription != nil {
			out.SubscriptionRef = session.Subscription.ID
		}
		if event.Type == "checkout.session.completed" {
			out.Type = EventCheckoutCompleted
		} else {
			out.Type = EventCheckoutCanceled
		}

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, &ProviderError{Provider: ProviderStripe, Err: fmt.Errorf("parse subscription: %w", err)}
		}
		out.SubscriptionRef = sub.ID
		out.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
		out.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		out.SubscriptionStatus = normalizeSubscriptionStatus(string(sub.Status))
		if event.Type == "customer.subscription.deleted" {
			out.Type = EventSubscriptionCanceled
		} else {
			out.Type = EventSubscriptionUpdated
		}

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, &ProviderError{Provider: ProviderStripe, Err: fmt.Errorf("parse invoice: %w", err)}
		}
		if inv.Subscription != nil {
			out.SubscriptionRef = inv.Subscription.ID
		}
		out.Type = EventInvoicePaymentFailed

	default:
		out.Type = EventIgnored
	}

	return out, nil
}

func (p *StripeProvider) CancelSubscription(providerSubID string) error {
	if _, err := subscription.Cancel(providerSubID, nil); err != nil {
		return stripeError(err)
	}
	return nil
}

func stripeError(err error) error {
	if sErr, ok := err.(*stripe.Error); ok {
		return &ProviderError{Provider: ProviderStripe, Status: sErr.HTTPStatusCode, Body: sErr.Msg, Err: err}
	}
	return &ProviderError{Provider: ProviderStripe, Err: err}
}

// normalizeSubscriptionStatus maps Stripe subscription statuses onto the
// internal subscription vocabulary.
func normalizeSubscriptionStatus(s string) string {
	switch s {
	case "active", "trialing":
		return billing.SubActive
	case "past_due":
		return billing.SubPastDue
	case "unpaid":
		return billing.SubUnpaid
	case "canceled", "incomplete_expired":
		return billing.SubCanceled
	case "incomplete":
		return billing.SubIncomplete
	default:
		return s
	}
}
