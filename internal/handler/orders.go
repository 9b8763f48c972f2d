package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/ogen-go/ogen/validate"

	"github.com/xenking/eyewear-store/internal/domain/order"
)

func decodeLineItems(d *jx.Decoder) ([]order.LineItem, error) {
	var items []order.LineItem
	err := d.Arr(func(d *jx.Decoder) error {
		var li order.LineItem
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "product_id":
				li.ProductID, err = d.Str()
			case "quantity":
				li.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		items = append(items, li)
		return nil
	})
	return items, err
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var items []order.LineItem
	if err := h.decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		if key != "items" {
			return d.Skip()
		}
		items, err = decodeLineItems(d)
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	q, err := h.Orders.Quote(r.Context(), items)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeQuote(e, q)
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req order.CheckoutRequest
	if err := h.decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "email":
			req.CustomerEmail, err = d.Str()
		case "items":
			req.Items, err = decodeLineItems(d)
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Orders.Checkout(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("order")
		encodeOrder(e, res.Order, false)
		e.FieldStart("redirect_url")
		e.Str(res.RedirectURL)
		e.ObjEnd()
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	h.serveOrder(w, r, false)
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	h.serveOrder(w, r, true)
}

func (h *Handler) serveOrder(w http.ResponseWriter, r *http.Request, admin bool) {
	o, err := h.Orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, admin)
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f := order.Filter{
		Status: order.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  limit,
		Offset: offset,
	}
	orders, total, err := h.Orders.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, total, effectiveLimit(limit), offset, func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i], true)
			}
		})
	})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var next order.Status
	if err := h.decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		s, err := d.Str()
		next = order.Status(s)
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if next == "" {
		fail(w, r, &validate.Error{Fields: []validate.FieldError{
			{Name: "status", Error: errors.New("required")},
		}})
		return
	}
	o, err := h.Orders.UpdateStatus(r.Context(), r.PathValue("id"), next)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o, true)
	})
}

func encodeQuote(e *jx.Encoder, q *order.QuoteResult) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range q.Lines {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		e.FieldStart("sku")
		e.Str(l.SKU)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("category")
		e.Str(string(l.Category))
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("list_price")
		encodeMoney(e, l.ListPrice)
		e.FieldStart("unit_price")
		encodeMoney(e, l.UnitPrice)
		e.FieldStart("line_total")
		encodeMoney(e, l.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("adjustments")
	e.ArrStart()
	for _, a := range q.Adjustments {
		e.ObjStart()
		e.FieldStart("description")
		e.Str(a.Description)
		e.FieldStart("amount")
		encodeMoney(e, a.Amount)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeMoney(e, q.Subtotal)
	e.FieldStart("discount")
	encodeMoney(e, q.Discount)
	e.FieldStart("shipping")
	encodeMoney(e, q.Shipping)
	e.FieldStart("total")
	encodeMoney(e, q.Total)
	e.FieldStart("currency")
	e.Str(q.Currency)
	e.FieldStart("promotion_id")
	e.Str(q.PromotionID)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order, admin bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("customer_email")
	e.Str(o.CustomerEmail)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("sku")
		e.Str(it.SKU)
		e.FieldStart("name")
		e.Str(it.Name)
		e.FieldStart("category")
		e.Str(string(it.Category))
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unit_price")
		encodeMoney(e, it.UnitPrice)
		e.FieldStart("line_total")
		encodeMoney(e, it.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("discount")
	encodeMoney(e, o.Discount)
	e.FieldStart("shipping")
	encodeMoney(e, o.Shipping)
	e.FieldStart("total")
	encodeMoney(e, o.Total)
	e.FieldStart("currency")
	e.Str(o.Currency)
	e.FieldStart("promotion_id")
	e.Str(o.PromotionID)
	if admin {
		e.FieldStart("payment_session_id")
		e.Str(o.PaymentSessionID)
		e.FieldStart("payment_intent_id")
		e.Str(o.PaymentIntentID)
	}
	e.FieldStart("paid_at")
	encodeOptTime(e, o.PaidAt)
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}
