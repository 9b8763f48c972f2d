package handler

import (
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eyewear-store/internal/domain/payment"
)

func TestStripeWebhook(t *testing.T) {
	paid := &payment.Event{ID: "evt_1", Kind: payment.KindCheckoutCompleted, SessionID: "cs_1", Paid: true}

	tests := []struct {
		name       string
		parser     *fakeParser
		reconciler *fakeReconciler
		wantStatus int
		wantBody   string
	}{
		{
			name:       "processed",
			parser:     &fakeParser{ev: paid},
			reconciler: &fakeReconciler{outcome: payment.OutcomeProcessed},
			wantStatus: http.StatusOK,
			wantBody:   `{"success":true,"data":{"event_id":"evt_1","outcome":"processed"}}`,
		},
		{
			name:       "duplicate delivery",
			parser:     &fakeParser{ev: paid},
			reconciler: &fakeReconciler{outcome: payment.OutcomeDuplicate},
			wantStatus: http.StatusOK,
			wantBody:   `{"success":true,"data":{"event_id":"evt_1","outcome":"duplicate"}}`,
		},
		{
			name:       "bad signature",
			parser:     &fakeParser{err: errors.Wrap(payment.ErrInvalidSignature, "stripe")},
			reconciler: &fakeReconciler{},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"success":false,"error":"invalid request: stripe: invalid webhook signature"}`,
		},
		{
			name:   "amount mismatch is retried",
			parser: &fakeParser{ev: paid},
			reconciler: &fakeReconciler{err: &payment.AmountMismatchError{
				OrderID: "o1", Expected: 16900, Got: 100, Currency: "eur",
			}},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "database failure is retried",
			parser:     &fakeParser{ev: paid},
			reconciler: &fakeReconciler{err: errors.New("deadlock")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"success":false,"error":"internal server error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(Config{}, Deps{Webhooks: tt.parser, Reconciler: tt.reconciler})
			w := call(t, mux, http.MethodPost, "/api/webhooks/stripe", `{"id":"evt_1"}`,
				HeaderStripeSignature, "t=1,v1=abc")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
			assert.Equal(t, "t=1,v1=abc", tt.parser.sig)
			if tt.parser.err == nil {
				require.NotNil(t, tt.reconciler.got)
				assert.Equal(t, "evt_1", tt.reconciler.got.ID)
			} else {
				assert.Nil(t, tt.reconciler.got)
			}
		})
	}
}

func TestStripeWebhook_NotConfigured(t *testing.T) {
	mux := newMux(Config{}, Deps{})
	w := call(t, mux, http.MethodPost, "/api/webhooks/stripe", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"payments are not configured"}`, w.Body.String())
}
