package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eyewear-store/internal/domain/order"
)

const orderColumns = `id, status, customer_email, items, subtotal, discount, shipping, total, currency,
	promotion_id, payment_session_id, payment_intent_id, paid_at, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderBySessionSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_session_id = $1`

	getOrderByIntentSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_intent_id = $1
		ORDER BY created_at DESC LIMIT 1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR status = $1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1::text = '' OR status = $1)`

	updateOrderStatusSQL = `UPDATE orders SET status = $3,
		payment_intent_id = CASE WHEN $4::text = '' THEN payment_intent_id ELSE $4 END,
		paid_at = COALESCE($5::timestamptz, paid_at),
		updated_at = now()
		WHERE id = $1 AND status = $2`

	setPaymentSessionSQL = `UPDATE orders SET payment_session_id = $2, updated_at = now() WHERE id = $1`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, string(o.Status), o.CustomerEmail, itemsJSON, o.Subtotal, o.Discount, o.Shipping, o.Total,
		o.Currency, o.PromotionID, o.PaymentSessionID, o.PaymentIntentID, o.PaidAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	return nil
}

// GetByID returns an order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByPaymentSession returns the order a checkout session was opened for.
func (r *OrderRepository) GetByPaymentSession(ctx context.Context, sessionID string) (*order.Order, error) {
	if sessionID == "" {
		return nil, order.ErrNotFound
	}
	return r.getOne(ctx, getOrderBySessionSQL, sessionID)
}

// GetByPaymentIntent returns the order paid by a payment intent.
func (r *OrderRepository) GetByPaymentIntent(ctx context.Context, intentID string) (*order.Order, error) {
	if intentID == "" {
		return nil, order.ErrNotFound
	}
	return r.getOne(ctx, getOrderByIntentSQL, intentID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}
	return &o, nil
}

// List returns a page of orders, newest first, and the number of matches.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	q := conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, countOrdersSQL, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	rows, err := q.Query(ctx, listOrdersSQL, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus applies u when the stored status still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from order.Status, u order.StatusUpdate) error {
	q := conn(ctx, r.pool)
	tag, err := q.Exec(ctx, updateOrderStatusSQL, id, string(from), string(u.Status), u.PaymentIntentID, u.PaidAt)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrInvalidTransition
}

// SetPaymentSession stores the checkout session id of an order.
func (r *OrderRepository) SetPaymentSession(ctx context.Context, id, sessionID string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setPaymentSessionSQL, id, sessionID)
	if err != nil {
		return fmt.Errorf("setting payment session of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
		items  []byte
	)
	err := row.Scan(
		&o.ID, &status, &o.CustomerEmail, &items, &o.Subtotal, &o.Discount, &o.Shipping, &o.Total, &o.Currency,
		&o.PromotionID, &o.PaymentSessionID, &o.PaymentIntentID, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	return o, nil
}
