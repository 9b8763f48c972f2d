package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/domain/order"
	"github.com/xenking/eyewear-store/internal/domain/product"
)

// Reconciler applies payment events to orders exactly once per event id.
type Reconciler struct {
	tx      Transactor
	events  EventStore
	orders  Orders
	stock   Stock
	handled metric.Int64Counter
	now     func() time.Time
}

// NewReconciler creates a Reconciler. Counters are registered on meter.
func NewReconciler(tx Transactor, events EventStore, orders Orders, stock Stock, meter metric.Meter) (*Reconciler, error) {
	handled, err := meter.Int64Counter("payment.events.handled",
		metric.WithDescription("Payment webhook events by kind and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}
	return &Reconciler{
		tx:      tx,
		events:  events,
		orders:  orders,
		stock:   stock,
		handled: handled,
		now:     time.Now,
	}, nil
}

type result struct {
	orderID string
	outcome Outcome
}

// Reconcile records ev and applies it to its order inside one transaction.
// A returned error rolls the event back so a redelivery is processed again.
func (r *Reconciler) Reconcile(ctx context.Context, ev *Event) (Outcome, error) {
	lg := zctx.From(ctx).With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
	)
	if !ev.Kind.Supported() {
		lg.Debug("Ignoring payment event")
		r.count(ctx, ev, OutcomeIgnored)
		return OutcomeIgnored, nil
	}

	var res result
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		first, err := r.events.Record(ctx, ev)
		if err != nil {
			return errors.Wrap(err, "record event")
		}
		if !first {
			res = result{outcome: OutcomeDuplicate}
			return nil
		}
		res, err = r.apply(ctx, lg, ev)
		if err != nil {
			return err
		}
		if err := r.events.Finish(ctx, ev.ID, res.orderID, res.outcome); err != nil {
			return errors.Wrap(err, "finish event")
		}
		return nil
	})
	if err != nil {
		lg.Error("Reconcile payment event", zap.Error(err))
		r.count(ctx, ev, "error")
		return "", err
	}

	lg.Info("Payment event reconciled",
		zap.String("order_id", res.orderID),
		zap.String("outcome", string(res.outcome)),
	)
	r.count(ctx, ev, res.outcome)
	return res.outcome, nil
}

func (r *Reconciler) count(ctx context.Context, ev *Event, outcome Outcome) {
	r.handled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(ev.Kind)),
		attribute.String("outcome", string(outcome)),
	))
}

func (r *Reconciler) apply(ctx context.Context, lg *zap.Logger, ev *Event) (result, error) {
	o, err := r.findOrder(ctx, ev)
	if errors.Is(err, order.ErrNotFound) {
		lg.Warn("Payment event for unknown order",
			zap.String("session_id", ev.SessionID),
			zap.String("payment_intent", ev.PaymentIntentID),
		)
		return result{outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return result{}, errors.Wrap(err, "find order")
	}

	res := result{orderID: o.ID, outcome: OutcomeNoop}
	switch ev.Kind {
	case KindCheckoutCompleted, KindPaymentSucceeded:
		if !ev.Paid {
			res.outcome = OutcomeIgnored
			return res, nil
		}
		return r.markPaid(ctx, lg, o, ev)
	case KindPaymentFailed:
		return r.transition(ctx, o, order.StatusPending, order.StatusUpdate{Status: order.StatusCancelled})
	case KindCheckoutExpired:
		return r.transition(ctx, o, order.StatusPending, order.StatusUpdate{Status: order.StatusExpired})
	case KindChargeRefunded:
		if !ev.Refunded {
			res.outcome = OutcomeIgnored
			return res, nil
		}
		if o.Status != order.StatusPaid && o.Status != order.StatusFulfilled {
			return res, nil
		}
		return r.transition(ctx, o, o.Status, order.StatusUpdate{Status: order.StatusRefunded})
	}
	return res, nil
}

func (r *Reconciler) findOrder(ctx context.Context, ev *Event) (*order.Order, error) {
	if ev.Kind == KindChargeRefunded {
		if ev.PaymentIntentID == "" {
			return nil, order.ErrNotFound
		}
		return r.orders.GetByPaymentIntent(ctx, ev.PaymentIntentID)
	}
	if ev.SessionID != "" {
		o, err := r.orders.GetByPaymentSession(ctx, ev.SessionID)
		if err == nil || !errors.Is(err, order.ErrNotFound) || ev.OrderID == "" {
			return o, err
		}
	}
	if ev.OrderID == "" {
		return nil, order.ErrNotFound
	}
	return r.orders.GetByID(ctx, ev.OrderID)
}

// transition moves o from the given status, or reports a no-op when o is
// already elsewhere.
func (r *Reconciler) transition(ctx context.Context, o *order.Order, from order.Status, u order.StatusUpdate) (result, error) {
	res := result{orderID: o.ID, outcome: OutcomeNoop}
	if o.Status != from || !from.CanTransitionTo(u.Status) {
		return res, nil
	}
	if err := r.orders.UpdateStatus(ctx, o.ID, from, u); err != nil {
		return result{}, errors.Wrapf(err, "update order %s", o.ID)
	}
	res.outcome = OutcomeProcessed
	return res, nil
}

func (r *Reconciler) markPaid(ctx context.Context, lg *zap.Logger, o *order.Order, ev *Event) (result, error) {
	switch o.Status {
	case order.StatusPending:
	case order.StatusPaid, order.StatusFulfilled:
		return result{orderID: o.ID, outcome: OutcomeNoop}, nil
	default:
		lg.Warn("Payment received for closed order",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)),
		)
		return result{orderID: o.ID, outcome: OutcomeNoop}, nil
	}

	if ev.AmountTotal != o.AmountDue() || !strings.EqualFold(ev.Currency, o.Currency) {
		return result{}, &AmountMismatchError{
			OrderID:  o.ID,
			Expected: o.AmountDue(),
			Got:      ev.AmountTotal,
			Currency: ev.Currency,
		}
	}

	paidAt := r.now().UTC()
	res, err := r.transition(ctx, o, order.StatusPending, order.StatusUpdate{
		Status:          order.StatusPaid,
		PaymentIntentID: ev.PaymentIntentID,
		PaidAt:          &paidAt,
	})
	if err != nil {
		return result{}, err
	}

	for _, item := range o.Items {
		err := r.stock.AdjustStock(ctx, item.ProductID, -item.Quantity)
		switch {
		case err == nil:
		case errors.Is(err, product.ErrInsufficientStock), errors.Is(err, product.ErrNotFound):
			// The sale stands; oversold stock is left for manual review.
			lg.Warn("Stock not decremented",
				zap.String("order_id", o.ID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		default:
			return result{}, errors.Wrapf(err, "adjust stock %s", item.ProductID)
		}
	}
	return res, nil
}
