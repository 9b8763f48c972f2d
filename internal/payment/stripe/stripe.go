// Package stripe opens Stripe Checkout sessions for orders and decodes
// signed Stripe webhook deliveries.
package stripe

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/xenking/eyewear-store/internal/domain/order"
	"github.com/xenking/eyewear-store/internal/domain/payment"
	"github.com/xenking/eyewear-store/internal/domain/pricing"
)

// Config holds Stripe credentials and redirect targets.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	// Tolerance bounds the age of a webhook signature.
	Tolerance time.Duration
}

type sessionCreator interface {
	New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

// Client talks to the Stripe API.
type Client struct {
	sessions      sessionCreator
	webhookSecret string
	successURL    string
	cancelURL     string
	tolerance     time.Duration
}

var (
	_ order.PaymentProvider = (*Client)(nil)
	_ payment.Parser        = (*Client)(nil)
)

// New creates a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	api := client.New(cfg.SecretKey, nil)
	return newClient(api.CheckoutSessions, cfg), nil
}

func newClient(sessions sessionCreator, cfg Config) *Client {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}
	return &Client{
		sessions:      sessions,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		tolerance:     cfg.Tolerance,
	}
}

// CreateCheckoutSession opens a hosted payment page charging the order total.
// Merchandise is sent as one line so that bundle pricing survives intact.
func (c *Client) CreateCheckoutSession(ctx context.Context, o *order.Order) (*order.CheckoutSession, error) {
	currency := strings.ToLower(o.Currency)

	names := make([]string, len(o.Items))
	for i, item := range o.Items {
		names[i] = item.Name
	}
	lines := []*stripeapi.CheckoutSessionLineItemParams{{
		PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripeapi.String(currency),
			UnitAmount: stripeapi.Int64(pricing.MinorUnits(o.MerchandiseTotal())),
			ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
				Name:        stripeapi.String("Order " + o.ID),
				Description: stripeapi.String(strings.Join(names, ", ")),
			},
		},
		Quantity: stripeapi.Int64(1),
	}}
	if o.Shipping.IsPositive() {
		lines = append(lines, &stripeapi.CheckoutSessionLineItemParams{
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String(currency),
				UnitAmount: stripeapi.Int64(pricing.MinorUnits(o.Shipping)),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String("Shipping"),
				},
			},
			Quantity: stripeapi.Int64(1),
		})
	}

	params := &stripeapi.CheckoutSessionParams{
		Params:            stripeapi.Params{Context: ctx},
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(c.successURL),
		CancelURL:         stripeapi.String(c.cancelURL),
		CustomerEmail:     stripeapi.String(o.CustomerEmail),
		ClientReferenceID: stripeapi.String(o.ID),
		LineItems:         lines,
		PaymentIntentData: &stripeapi.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": o.ID},
		},
	}
	params.AddMetadata("order_id", o.ID)

	s, err := c.sessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "stripe")
	}
	return &order.CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// ParseEvent verifies the Stripe-Signature header and normalizes the event.
func (c *Client) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, errors.Wrap(payment.ErrInvalidSignature, err.Error())
		}
		return nil, errors.Wrap(err, "decode event")
	}

	out := &payment.Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case "checkout.session.completed":
		out.Kind = payment.KindCheckoutCompleted
	case "checkout.session.async_payment_succeeded":
		out.Kind = payment.KindPaymentSucceeded
	case "checkout.session.async_payment_failed":
		out.Kind = payment.KindPaymentFailed
	case "checkout.session.expired":
		out.Kind = payment.KindCheckoutExpired
	case "charge.refunded":
		var ch stripeapi.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return nil, errors.Wrap(err, "decode charge")
		}
		out.Kind = payment.KindChargeRefunded
		out.AmountTotal = ch.AmountRefunded
		out.Currency = string(ch.Currency)
		out.Refunded = ch.Refunded
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
		return out, nil
	default:
		return out, nil
	}

	var s stripeapi.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, errors.Wrap(err, "decode checkout session")
	}
	out.SessionID = s.ID
	out.OrderID = s.ClientReferenceID
	if out.OrderID == "" {
		out.OrderID = s.Metadata["order_id"]
	}
	out.AmountTotal = s.AmountTotal
	out.Currency = string(s.Currency)
	out.Paid = s.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	return out, nil
}

func isSignatureError(err error) bool {
	for _, target := range []error{
		webhook.ErrNotSigned,
		webhook.ErrInvalidHeader,
		webhook.ErrNoValidSignature,
		webhook.ErrTooOld,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
