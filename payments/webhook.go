package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

// Webhook event types handled by the reservation lifecycle.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventRefundSucceeded        = "refund.succeeded"
	EventChargeRefunded         = "charge.refunded"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds the age of a signed webhook.
const DefaultTolerance = webhook.DefaultTolerance

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Event is the part of the webhook envelope the handlers need.
type Event struct {
	ID      string
	Type    string
	Created int64
	Object  json.RawMessage
}

// SessionObject is data.object of checkout.session.* events.
type SessionObject struct {
	ID                string            `json:"id"`
	PaymentIntent     string            `json:"payment_intent"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// PaymentIntentObject is data.object of payment_intent.* events.
type PaymentIntentObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// RefundObject is data.object of refund.* and charge.refunded events.
type RefundObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
}

// Decode unmarshals data.object into v.
func (e *Event) Decode(v any) error {
	if len(e.Object) == 0 {
		return fmt.Errorf("%w: event %s has no data.object", ErrInvalidPayload, e.ID)
	}
	if err := json.Unmarshal(e.Object, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Verifier checks webhook signatures against the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

func signatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// ConstructEvent verifies the signature header and decodes the payload.
// Events from any API version are accepted; only data.object is read.
func (v *Verifier) ConstructEvent(payload []byte, header string) (*Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if signatureError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrInvalidPayload)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type), Created: ev.Created}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}

// SignatureFor builds a signed header value for payload. Used by tests and
// local tooling to replay events.
func SignatureFor(secret string, at time.Time, payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}
