// Package payment reconciles payment provider events with orders.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/eyewear-store/internal/domain/order"
)

// Sentinel errors for event handling.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrAmountMismatch   = errors.New("paid amount does not match order total")
)

// Kind is a provider-neutral event category.
type Kind string

// Supported event kinds. Anything else is ignored.
const (
	KindCheckoutCompleted Kind = "checkout_completed"
	KindPaymentSucceeded  Kind = "payment_succeeded"
	KindPaymentFailed     Kind = "payment_failed"
	KindCheckoutExpired   Kind = "checkout_expired"
	KindChargeRefunded    Kind = "charge_refunded"
)

// Supported reports whether k is handled by the reconciler.
func (k Kind) Supported() bool {
	switch k {
	case KindCheckoutCompleted, KindPaymentSucceeded, KindPaymentFailed, KindCheckoutExpired, KindChargeRefunded:
		return true
	default:
		return false
	}
}

// Event is a verified provider notification.
type Event struct {
	ID              string
	Type            string
	Kind            Kind
	SessionID       string
	PaymentIntentID string
	// OrderID is the reference attached to the session at checkout.
	OrderID     string
	AmountTotal int64
	Currency    string
	Paid        bool
	// Refunded is set for a charge refunded in full.
	Refunded bool
}

// Outcome is the result of reconciling one event.
type Outcome string

// Reconciliation outcomes.
const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNoop      Outcome = "noop"
)

// AmountMismatchError reports a payment whose amount or currency differs
// from the order.
type AmountMismatchError struct {
	OrderID  string
	Expected int64
	Got      int64
	Currency string
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("order %s: expected %d, got %d %s", e.OrderID, e.Expected, e.Got, e.Currency)
}

// Unwrap lets callers match ErrAmountMismatch.
func (e *AmountMismatchError) Unwrap() error {
	return ErrAmountMismatch
}

// Parser verifies and decodes raw webhook deliveries.
type Parser interface {
	ParseEvent(payload []byte, signature string) (*Event, error)
}

// Transactor runs fn in a database transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventStore remembers processed event ids.
type EventStore interface {
	// Record stores the event id. It reports false when the id was already
	// recorded.
	Record(ctx context.Context, ev *Event) (bool, error)
	Finish(ctx context.Context, id, orderID string, outcome Outcome) error
}

// Orders is the subset of order persistence the reconciler needs.
type Orders interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*order.Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, from order.Status, u order.StatusUpdate) error
}

// Stock adjusts inventory levels.
type Stock interface {
	AdjustStock(ctx context.Context, productID string, delta int) error
}
