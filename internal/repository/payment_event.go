package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/eyewear-store/internal/domain/payment"
)

const (
	recordPaymentEventSQL = `INSERT INTO payment_events (id, type) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	finishPaymentEventSQL = `UPDATE payment_events SET order_id = $2, outcome = $3 WHERE id = $1`
)

var _ payment.EventStore = (*PaymentEventRepository)(nil)

// PaymentEventRepository deduplicates webhook deliveries by event id.
type PaymentEventRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentEventRepository returns a PaymentEventRepository that uses the given pool.
func NewPaymentEventRepository(pool *pgxpool.Pool) *PaymentEventRepository {
	return &PaymentEventRepository{pool: pool}
}

// Record inserts the event id and reports whether it was new.
func (r *PaymentEventRepository) Record(ctx context.Context, ev *payment.Event) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, recordPaymentEventSQL, ev.ID, ev.Type)
	if err != nil {
		return false, fmt.Errorf("recording payment event %q: %w", ev.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finish stores the reconciliation outcome of an event.
func (r *PaymentEventRepository) Finish(ctx context.Context, id, orderID string, outcome payment.Outcome) error {
	_, err := conn(ctx, r.pool).Exec(ctx, finishPaymentEventSQL, id, orderID, string(outcome))
	if err != nil {
		return fmt.Errorf("finishing payment event %q: %w", id, err)
	}
	return nil
}
