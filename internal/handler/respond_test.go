package handler

import (
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"github.com/stretchr/testify/assert"

	"github.com/xenking/eyewear-store/internal/domain/auth"
	"github.com/xenking/eyewear-store/internal/domain/order"
	"github.com/xenking/eyewear-store/internal/domain/payment"
	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/user"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "body too large", err: &http.MaxBytesError{Limit: 10}, want: http.StatusRequestEntityTooLarge},
		{name: "malformed request", err: badRequest(errors.New("unexpected EOF")), want: http.StatusBadRequest},
		{name: "validation", err: &validate.Error{Fields: []validate.FieldError{{Name: "sku", Error: errors.New("required")}}}, want: http.StatusBadRequest},
		{name: "unauthorized", err: auth.ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "forbidden", err: auth.ErrForbidden, want: http.StatusForbidden},
		{name: "wrapped not found", err: errors.Wrap(product.ErrNotFound, "get product"), want: http.StatusNotFound},
		{name: "email taken", err: user.ErrEmailTaken, want: http.StatusConflict},
		{name: "invalid transition", err: order.ErrInvalidTransition, want: http.StatusConflict},
		{name: "out of stock", err: &order.InsufficientStockError{ProductID: "g1", Requested: 3, Available: 1}, want: http.StatusUnprocessableEntity},
		{name: "amount mismatch", err: errors.Wrap(&payment.AmountMismatchError{OrderID: "o1", Expected: 17900, Got: 100, Currency: "eur"}, "reconcile"), want: http.StatusUnprocessableEntity},
		{name: "payments off", err: order.ErrPaymentsUnavailable, want: http.StatusServiceUnavailable},
		{name: "storage off", err: product.ErrStorageDisabled, want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
