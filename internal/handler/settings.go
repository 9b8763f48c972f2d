package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/eyewear-store/internal/domain/settings"
)

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Settings.Get(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSettings(e, st)
	})
}

// updateSettings applies the fields present in the body to the current
// settings.
func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.Settings.Get(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.decodeBody(w, r, func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "store_name":
			st.StoreName, err = d.Str()
		case "currency":
			st.Currency, err = d.Str()
		case "shipping_flat_rate":
			st.ShippingFlatRate, err = decodeDecimal(d)
		case "free_shipping_threshold":
			st.FreeShippingThreshold, err = decodeDecimal(d)
		case "checkout_enabled":
			st.CheckoutEnabled, err = d.Bool()
		case "support_email":
			st.SupportEmail, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Settings.Update(r.Context(), st); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSettings(e, st)
	})
}

func encodeSettings(e *jx.Encoder, st *settings.Settings) {
	e.ObjStart()
	e.FieldStart("store_name")
	e.Str(st.StoreName)
	e.FieldStart("currency")
	e.Str(st.Currency)
	e.FieldStart("shipping_flat_rate")
	encodeMoney(e, st.ShippingFlatRate)
	e.FieldStart("free_shipping_threshold")
	encodeMoney(e, st.FreeShippingThreshold)
	e.FieldStart("checkout_enabled")
	e.Bool(st.CheckoutEnabled)
	e.FieldStart("support_email")
	e.Str(st.SupportEmail)
	e.FieldStart("updated_at")
	if st.UpdatedAt.IsZero() {
		e.Null()
	} else {
		encodeTime(e, st.UpdatedAt)
	}
	e.ObjEnd()
}
