package order

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/domain/pricing"
	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
	"github.com/xenking/eyewear-store/internal/domain/settings"
)

// Sentinel errors for cart and order operations.
var (
	ErrEmptyItems          = errors.New("items required")
	ErrCheckoutDisabled    = errors.New("checkout is disabled")
	ErrPaymentsUnavailable = errors.New("payments are not configured")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a product exists but is not for sale.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s: requested %d, %d in stock", e.ProductID, e.Requested, e.Available)
}

// Catalog loads products for pricing.
type Catalog interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// PromotionSource resolves the promotion running now.
type PromotionSource interface {
	Current(ctx context.Context) (*promotion.Promotion, error)
}

// SettingsSource returns the store settings.
type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// CheckoutSession is a hosted payment page opened for an order.
type CheckoutSession struct {
	ID  string
	URL string
}

// PaymentProvider opens hosted checkout sessions.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, o *Order) (*CheckoutSession, error)
}

// QuoteResult is a priced cart.
type QuoteResult struct {
	pricing.Quote
	Currency string
}

// CheckoutRequest holds the input for checkout.
type CheckoutRequest struct {
	CustomerEmail string
	Items         []LineItem
}

// CheckoutResult is a pending order and the page where it is paid.
type CheckoutResult struct {
	Order       *Order
	RedirectURL string
}

// Service encapsulates cart pricing, checkout and order administration.
type Service struct {
	products   Catalog
	promotions PromotionSource
	settings   SettingsSource
	orders     Repository
	payments   PaymentProvider
	tracer     trace.Tracer
	now        func() time.Time
}

// NewService creates an order Service. payments may be nil, in which case
// Checkout fails with ErrPaymentsUnavailable.
func NewService(
	products Catalog,
	promotions PromotionSource,
	settings SettingsSource,
	orders Repository,
	payments PaymentProvider,
	tracer trace.Tracer,
) *Service {
	return &Service{
		products:   products,
		promotions: promotions,
		settings:   settings,
		orders:     orders,
		payments:   payments,
		tracer:     tracer,
		now:        time.Now,
	}
}

// Quote prices a cart with the running promotion and current settings.
func (s *Service) Quote(ctx context.Context, items []LineItem) (*QuoteResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.Quote")
	defer span.End()

	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}
	res, err := s.price(ctx, items, st)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

// Checkout prices the cart, persists a pending order and opens a payment
// session for it. The order is cancelled when the session cannot be opened.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer span.End()

	res, err := s.checkout(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order.id", res.Order.ID),
		attribute.String("order.total", res.Order.Total.StringFixed(2)),
	)
	return res, nil
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get settings")
	}
	if !st.CheckoutEnabled {
		return nil, ErrCheckoutDisabled
	}
	if s.payments == nil {
		return nil, ErrPaymentsUnavailable
	}

	email := strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, &validate.Error{Fields: []validate.FieldError{
			{Name: "email", Error: errors.New("invalid email address")},
		}}
	}

	q, err := s.price(ctx, req.Items, st)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		ID:            uuid.New().String(),
		Status:        StatusPending,
		CustomerEmail: email,
		Items:         make([]Item, len(q.Lines)),
		Subtotal:      q.Subtotal,
		Discount:      q.Discount,
		Shipping:      q.Shipping,
		Total:         q.Total,
		Currency:      q.Currency,
		PromotionID:   q.PromotionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, l := range q.Lines {
		o.Items[i] = Item{
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Name:      l.Name,
			Category:  l.Category,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		}
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	session, err := s.payments.CreateCheckoutSession(ctx, o)
	if err != nil {
		if cerr := s.orders.UpdateStatus(ctx, o.ID, StatusPending, StatusUpdate{Status: StatusCancelled}); cerr != nil {
			zctx.From(ctx).Warn("Cancel order after failed checkout",
				zap.String("order_id", o.ID),
				zap.Error(cerr),
			)
		}
		return nil, errors.Wrap(err, "create checkout session")
	}
	if err := s.orders.SetPaymentSession(ctx, o.ID, session.ID); err != nil {
		return nil, errors.Wrap(err, "store payment session")
	}
	o.PaymentSessionID = session.ID

	return &CheckoutResult{Order: o, RedirectURL: session.URL}, nil
}

// price validates items, loads products in one batch and runs the pricing
// calculation. Repeated product ids are merged.
func (s *Service) price(ctx context.Context, items []LineItem, st *settings.Settings) (*QuoteResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}

	merged := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	ids := make([]string, len(merged))
	for i, item := range merged {
		ids[i] = item.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]pricing.Line, 0, len(merged))
	for _, item := range merged {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !p.Active {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
		if !p.InStock(item.Quantity) {
			return nil, &InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}
		lines = append(lines, pricing.Line{Product: p, Quantity: item.Quantity})
	}

	promo, err := s.promotions.Current(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "current promotion")
	}

	return &QuoteResult{
		Quote:    pricing.Calculate(lines, promo, st),
		Currency: st.Currency,
	}, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns a page of orders and the total count.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, statusError(f.Status)
	}
	return s.orders.List(ctx, f)
}

// UpdateStatus moves an order to next if the status machine allows it.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status) (*Order, error) {
	if !next.Valid() {
		return nil, statusError(next)
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, errors.Wrapf(ErrInvalidTransition, "%s to %s", o.Status, next)
	}
	if err := s.orders.UpdateStatus(ctx, id, o.Status, StatusUpdate{Status: next}); err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	o.Status = next
	o.UpdatedAt = s.now().UTC()
	return o, nil
}

func statusError(st Status) error {
	return &validate.Error{Fields: []validate.FieldError{
		{Name: "status", Error: errors.Errorf("unknown status %q", st)},
	}}
}

// AmountDue is the order total in minor currency units.
func (o *Order) AmountDue() int64 {
	return pricing.MinorUnits(o.Total)
}

// MerchandiseTotal is the total before shipping.
func (o *Order) MerchandiseTotal() decimal.Decimal {
	return o.Total.Sub(o.Shipping)
}
