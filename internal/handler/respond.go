package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/ogen-go/ogen/validate"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/domain/auth"
	"github.com/xenking/eyewear-store/internal/domain/order"
	"github.com/xenking/eyewear-store/internal/domain/payment"
	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
	"github.com/xenking/eyewear-store/internal/domain/user"
	"github.com/xenking/eyewear-store/pkg/httpmiddleware"
)

// writeData writes {"success":true,"data":...} with data produced by fn.
func writeData(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.FieldStart("data")
	fn(e)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// requestError is a malformed request body or query.
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return "invalid request: " + e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

func badRequest(err error) error {
	return &requestError{err: err}
}

// statusOf maps a service error to an HTTP status. The message is safe to
// return to the caller unless the status is 500.
func statusOf(err error) int {
	var (
		reqErr      *requestError
		validateErr *validate.Error
		maxBytesErr *http.MaxBytesError
		notFound    *order.ProductNotFoundError
		unavailable *order.ProductUnavailableError
		badQuantity *order.InvalidQuantityError
		outOfStock  *order.InsufficientStockError
		mismatch    *payment.AmountMismatchError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &reqErr),
		errors.As(err, &validateErr),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, product.ErrNoImage),
		errors.Is(err, promotion.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, product.ErrDuplicateSKU),
		errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &notFound),
		errors.As(err, &unavailable),
		errors.As(err, &badQuantity),
		errors.As(err, &outOfStock),
		errors.As(err, &mismatch),
		errors.Is(err, order.ErrCheckoutDisabled):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrPaymentsUnavailable),
		errors.Is(err, product.ErrStorageDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope for err. Unexpected errors are logged and
// hidden from the caller.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal server error"
	case http.StatusNotFound:
		msg = notFoundMessage(err)
	}
	httpmiddleware.WriteError(w, status, msg)
}

// notFoundMessage drops wrapping context from not-found errors.
func notFoundMessage(err error) string {
	for _, target := range []error{
		product.ErrNoImage, product.ErrNotFound, promotion.ErrNotFound, order.ErrNotFound, user.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
