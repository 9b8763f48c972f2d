package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/eyewear-store/internal/domain/product"
)

// ErrNotFound is returned when no order matches the lookup.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

// Order statuses.
const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusRefunded  Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled, StatusExpired},
	StatusPaid:      {StatusFulfilled, StatusRefunded, StatusCancelled},
	StatusFulfilled: {StatusRefunded},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFulfilled, StatusCancelled, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether an order in status s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is a customer purchase priced at checkout time.
type Order struct {
	ID               string
	Status           Status
	CustomerEmail    string
	Items            []Item
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	Shipping         decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	PromotionID      string
	PaymentSessionID string
	PaymentIntentID  string
	PaidAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item is an order line. Price fields are frozen at checkout.
type Item struct {
	ProductID string           `json:"product_id"`
	SKU       string           `json:"sku"`
	Name      string           `json:"name"`
	Category  product.Category `json:"category"`
	Quantity  int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	LineTotal decimal.Decimal  `json:"line_total"`
}

// LineItem is a requested product and quantity.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Filter narrows an order listing.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// StatusUpdate carries the fields written on a status change.
type StatusUpdate struct {
	Status          Status
	PaymentIntentID string
	PaidAt          *time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// UpdateStatus writes u only when the stored status still equals from.
	// It returns ErrInvalidTransition when the row has moved on.
	UpdateStatus(ctx context.Context, id string, from Status, u StatusUpdate) error
	SetPaymentSession(ctx context.Context, id, sessionID string) error
}
