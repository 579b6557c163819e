// Package payments integrates Stripe: checkout sessions, refunds and signed
// webhooks.
package payments

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Client wraps the Stripe API client for the two calls the booking flow makes.
type Client struct {
	api *client.API
}

// NewClient creates a Stripe client. baseURL may be empty to use Stripe's
// endpoint; tests point it to an httptest server.
func NewClient(secretKey, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(1),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if baseURL != "" {
		cfg.URL = stripe.String(baseURL)
		cfg.MaxNetworkRetries = stripe.Int64(0)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Client{api: api}
}

// CheckoutParams describes a one-item hosted checkout.
type CheckoutParams struct {
	ReservationID  string
	Description    string
	Amount         float64
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	ExpiresAt      time.Time
	IdempotencyKey string
}

type CheckoutSession struct {
	ID            string
	URL           string
	PaymentIntent string
}

type Refund struct {
	ID            string
	Status        string
	PaymentIntent string
	Amount        int64
}

// MinorUnits converts an amount in euros to cents.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(p.ReservationID),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(MinorUnits(p.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.Description),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"reservation_id": p.ReservationID},
		},
	}
	params.Context = ctx
	params.AddMetadata("reservation_id", p.ReservationID)
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if !p.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(p.ExpiresAt.Unix())
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, err
	}
	out := &CheckoutSession{ID: s.ID, URL: s.URL}
	if s.PaymentIntent != nil {
		out.PaymentIntent = s.PaymentIntent.ID
	}
	return out, nil
}

// RefundPayment refunds the whole amount of a payment intent.
func (c *Client) RefundPayment(ctx context.Context, paymentIntentID string) (*Refund, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + paymentIntentID)

	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, err
	}
	out := &Refund{ID: r.ID, Status: string(r.Status), Amount: r.Amount}
	if r.PaymentIntent != nil {
		out.PaymentIntent = r.PaymentIntent.ID
	}
	return out, nil
}
