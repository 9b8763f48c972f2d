package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/domain/order"
)

// HeaderStripeSignature carries the webhook signature.
const HeaderStripeSignature = "Stripe-Signature"

// stripeWebhook verifies and reconciles a payment event. Any non-2xx answer
// makes the provider deliver the event again.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Webhooks == nil || h.Reconciler == nil {
		fail(w, r, order.ErrPaymentsUnavailable)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		fail(w, r, badRequest(errors.Wrap(err, "read body")))
		return
	}

	ev, err := h.Webhooks.ParseEvent(payload, r.Header.Get(HeaderStripeSignature))
	if err != nil {
		zctx.From(r.Context()).Warn("Rejected webhook", zap.Error(err))
		fail(w, r, badRequest(err))
		return
	}

	outcome, err := h.Reconciler.Reconcile(r.Context(), ev)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("event_id")
		e.Str(ev.ID)
		e.FieldStart("outcome")
		e.Str(string(outcome))
		e.ObjEnd()
	})
}
