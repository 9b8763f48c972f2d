package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
)

func (h *Handler) currentPromotion(w http.ResponseWriter, r *http.Request) {
	p, err := h.Promotions.Current(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		if p == nil {
			e.Null()
			return
		}
		encodePromotion(e, p)
	})
}

func (h *Handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Promotions.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range list {
			encodePromotion(e, &list[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) getPromotion(w http.ResponseWriter, r *http.Request) {
	p, err := h.Promotions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodePromotion(e, p)
	})
}

func (h *Handler) createPromotion(w http.ResponseWriter, r *http.Request) {
	p := &promotion.Promotion{Active: true}
	if err := h.decodeBody(w, r, promotionDecoder(p)); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Promotions.Create(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		encodePromotion(e, p)
	})
}

func (h *Handler) updatePromotion(w http.ResponseWriter, r *http.Request) {
	p := &promotion.Promotion{Active: true}
	if err := h.decodeBody(w, r, promotionDecoder(p)); err != nil {
		fail(w, r, err)
		return
	}
	p.ID = r.PathValue("id")
	if err := h.Promotions.Update(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodePromotion(e, p)
	})
}

func (h *Handler) deletePromotion(w http.ResponseWriter, r *http.Request) {
	if err := h.Promotions.Delete(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("starts_at")
	encodeTime(e, p.StartsAt)
	e.FieldStart("ends_at")
	encodeTime(e, p.EndsAt)
	e.FieldStart("active")
	e.Bool(p.Active)
	e.FieldStart("tiers")
	e.ArrStart()
	for _, t := range p.Tiers {
		e.ObjStart()
		e.FieldStart("category")
		e.Str(string(t.Category))
		e.FieldStart("original_price")
		encodeMoney(e, t.OriginalPrice)
		e.FieldStart("discounted_price")
		encodeMoney(e, t.DiscountedPrice)
		e.FieldStart("pair_price")
		if t.HasBundle() {
			encodeMoney(e, t.PairPrice)
		} else {
			e.Null()
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

func promotionDecoder(p *promotion.Promotion) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "starts_at":
			p.StartsAt, err = decodeTime(d)
		case "ends_at":
			p.EndsAt, err = decodeTime(d)
		case "active":
			p.Active, err = d.Bool()
		case "tiers":
			p.Tiers = nil
			err = d.Arr(func(d *jx.Decoder) error {
				var t promotion.Tier
				if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
					var err error
					switch string(k) {
					case "category":
						var c string
						c, err = d.Str()
						t.Category = product.Category(c)
					case "original_price":
						t.OriginalPrice, err = decodeDecimal(d)
					case "discounted_price":
						t.DiscountedPrice, err = decodeDecimal(d)
					case "pair_price":
						t.PairPrice, err = decodeDecimal(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				p.Tiers = append(p.Tiers, t)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	}
}
