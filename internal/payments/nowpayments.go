package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hashrent-backend/internal/domain/plans"
)

const ProviderNOWPayments = "nowpayments"

// NOWPaymentsProvider creates hosted cryptocurrency invoices and verifies
// IPN callbacks. IPN signatures are HMAC-SHA512 over the key-sorted JSON
// body.
type NOWPaymentsProvider struct {
	apiKey    string
	ipnSecret string
	baseURL   string
	appURL    string
	client    *http.Client
}

func NewNOWPaymentsProvider(apiKey, ipnSecret, baseURL, appURL string) *NOWPaymentsProvider {
	return &NOWPaymentsProvider{
		apiKey:    apiKey,
		ipnSecret: ipnSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		appURL:    appURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *NOWPaymentsProvider) Name() string { return ProviderNOWPayments }

func (p *NOWPaymentsProvider) SignatureHeader() string { return "x-nowpayments-sig" }

type nowInvoiceRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	IPNCallbackURL   string  `json:"ipn_callback_url"`
	SuccessURL       string  `json:"success_url"`
	CancelURL        string  `json:"cancel_url"`
}

type nowInvoiceResponse struct {
	ID         json.Number `json:"id"`
	InvoiceURL string      `json:"invoice_url"`
	PayAddress string      `json:"pay_address"`
	PayAmount  float64     `json:"pay_amount"`
}

func (p *NOWPaymentsProvider) CreateCheckout(ctx context.Context, plan *plans.Plan, buyer Buyer) (*CheckoutSession, error) {
	reqBody, err := json.Marshal(nowInvoiceRequest{
		PriceAmount:      plan.Price,
		PriceCurrency:    plan.Currency,
		OrderID:          fmt.Sprint(buyer.TransactionID),
		OrderDescription: plan.Name,
		IPNCallbackURL:   p.appURL + "/webhooks/nowpayments",
		SuccessURL:       p.appURL + "/account",
		CancelURL:        p.appURL + "/account?canceled=1",
	})
	if err != nil {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/invoice", bytes.NewReader(reqBody))
	if err != nil {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Err: err}
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Status: resp.StatusCode, Body: string(body)}
	}

	var invoice nowInvoiceResponse
	if err := json.Unmarshal(body, &invoice); err != nil {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Status: resp.StatusCode, Err: fmt.Errorf("malformed invoice response: %w", err)}
	}
	if invoice.ID.String() == "" || invoice.InvoiceURL == "" {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Status: resp.StatusCode, Body: string(body)}
	}

	return &CheckoutSession{
		ProviderSessionID: invoice.ID.String(),
		RedirectURL:       invoice.InvoiceURL,
		PayAddress:        invoice.PayAddress,
		PayAmount:         invoice.PayAmount,
	}, nil
}

type nowIPN struct {
	PaymentID     json.Number `json:"payment_id"`
	InvoiceID     json.Number `json:"invoice_id"`
	PaymentStatus string      `json:"payment_status"`
	OrderID       string      `json:"order_id"`
}

func (p *NOWPaymentsProvider) VerifyAndParse(rawBody []byte, signature string) (*Event, error) {
	expected, err := p.sign(rawBody)
	if err != nil {
		return nil, &SignatureError{Provider: ProviderNOWPayments, Err: err}
	}
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return nil, &SignatureError{Provider: ProviderNOWPayments, Err: fmt.Errorf("signature mismatch")}
	}

	var ipn nowIPN
	if err := json.Unmarshal(rawBody, &ipn); err != nil {
		return nil, &ProviderError{Provider: ProviderNOWPayments, Err: fmt.Errorf("parse ipn: %w", err)}
	}

	out := &Event{
		// IPNs carry no event id; payment id + status pair stands in
		ProviderEventID: ipn.PaymentID.String() + ":" + ipn.PaymentStatus,
		ProviderRef:     ipn.InvoiceID.String(),
		Raw:             rawBody,
	}

	switch ipn.PaymentStatus {
	case "finished", "confirmed":
		out.Type = EventInvoicePaid
	case "partially_paid":
		out.Type = EventInvoicePartiallyPaid
	case "expired", "failed", "refunded":
		out.Type = EventInvoiceExpired
	default:
		// waiting / confirming / sending are progress notifications
		out.Type = EventIgnored
	}

	return out, nil
}

// sign computes the IPN signature: HMAC-SHA512 of the JSON body re-marshaled
// with its keys in sorted order.
func (p *NOWPaymentsProvider) sign(rawBody []byte) (string, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(rawBody, &fields); err != nil {
		return "", fmt.Errorf("parse body: %w", err)
	}
	sorted, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha512.New, []byte(p.ipnSecret))
	mac.Write(sorted)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
