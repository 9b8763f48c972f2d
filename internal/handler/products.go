package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/ogen-go/ogen/validate"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/domain/product"
)

// imageTypes maps accepted upload content types to file extensions.
var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	h.serveProductList(w, r, true)
}

func (h *Handler) adminListProducts(w http.ResponseWriter, r *http.Request) {
	h.serveProductList(w, r, false)
}

func (h *Handler) serveProductList(w http.ResponseWriter, r *http.Request, public bool) {
	f, err := productFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if public {
		f.ActiveOnly = true
	}
	items, total, err := h.Products.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodePage(e, total, effectiveLimit(f.Limit), max(f.Offset, 0), func(e *jx.Encoder) {
			for i := range items {
				h.encodeProduct(r.Context(), e, &items[i], !public)
			}
		})
	})
}

func productFilter(r *http.Request) (product.Filter, error) {
	limit, offset, err := page(r)
	if err != nil {
		return product.Filter{}, err
	}
	q := r.URL.Query()
	f := product.Filter{
		Category: product.Category(q.Get("category")),
		Query:    strings.TrimSpace(q.Get("q")),
		Limit:    limit,
		Offset:   offset,
	}
	if f.Category != "" && !f.Category.Valid() {
		return f, &validate.Error{Fields: []validate.FieldError{
			{Name: "category", Error: errors.Errorf("unknown category %q", f.Category)},
		}}
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil || !active {
			// Only "active=true" narrows the admin listing.
			return f, nil
		}
		f.ActiveOnly = true
	}
	return f, nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Get(r.Context(), r.PathValue("id"))
	if err == nil && !p.Active {
		err = product.ErrNotFound
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(r.Context(), e, p, false)
	})
}

func (h *Handler) adminGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(r.Context(), e, p, true)
	})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	p := &product.Product{Active: true}
	if err := h.decodeBody(w, r, productDecoder(p)); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Products.Create(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		h.encodeProduct(r.Context(), e, p, true)
	})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	p := &product.Product{Active: true}
	if err := h.decodeBody(w, r, productDecoder(p)); err != nil {
		fail(w, r, err)
		return
	}
	p.ID = r.PathValue("id")
	if err := h.Products.Update(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(r.Context(), e, p, true)
	})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) uploadProductImage(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	ext, ok := imageTypes[mediaType]
	if err != nil || !ok {
		fail(w, r, &validate.Error{Fields: []validate.FieldError{
			{Name: "Content-Type", Error: errors.New("must be image/jpeg, image/png or image/webp")},
		}})
		return
	}
	if r.ContentLength > h.cfg.MaxImageBytes {
		fail(w, r, &http.MaxBytesError{Limit: h.cfg.MaxImageBytes})
		return
	}
	size := r.ContentLength
	if size <= 0 {
		size = -1
	}

	p, err := h.Products.UploadImage(r.Context(), r.PathValue("id"), product.Image{
		Body:        http.MaxBytesReader(w, r.Body, h.cfg.MaxImageBytes),
		Size:        size,
		ContentType: mediaType,
		Filename:    "image" + ext,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeProduct(r.Context(), e, p, true)
	})
}

func (h *Handler) productImage(w http.ResponseWriter, r *http.Request) {
	rc, info, err := h.Products.OpenImage(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	hdr := w.Header()
	if info.ContentType != "" {
		hdr.Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if info.ETag != "" {
		hdr.Set("ETag", strconv.Quote(info.ETag))
	}
	hdr.Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		zctx.From(r.Context()).Warn("Image stream interrupted", zap.Error(err))
	}
}

// imageURL resolves the public location of a product image, or "" when the
// product has none.
func (h *Handler) imageURL(ctx context.Context, p *product.Product) string {
	if p.ImageKey == "" {
		return ""
	}
	if h.cfg.ImageBaseURL != "" {
		return strings.TrimRight(h.cfg.ImageBaseURL, "/") + "/" + p.ImageKey
	}
	if h.cfg.PresignExpiry > 0 {
		u, err := h.Products.ImageURL(ctx, p.ImageKey, h.cfg.PresignExpiry)
		if err == nil {
			return u
		}
		zctx.From(ctx).Warn("Presign image failed", zap.String("key", p.ImageKey), zap.Error(err))
	}
	return "/api/products/" + url.PathEscape(p.ID) + "/image"
}

func (h *Handler) encodeProduct(ctx context.Context, e *jx.Encoder, p *product.Product, admin bool) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("sku")
	e.Str(p.SKU)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("category")
	e.Str(string(p.Category))
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("in_stock")
	e.Bool(p.Stock > 0)
	if admin {
		e.FieldStart("stock")
		e.Int(p.Stock)
		e.FieldStart("active")
		e.Bool(p.Active)
		e.FieldStart("image_key")
		e.Str(p.ImageKey)
	}
	e.FieldStart("image_url")
	if u := h.imageURL(ctx, p); u != "" {
		e.Str(u)
	} else {
		e.Null()
	}

	switch {
	case p.Glasses != nil:
		e.FieldStart("glasses")
		e.ObjStart()
		encodeFrame(e, p.Glasses.Frame)
		e.FieldStart("blue_light_filter")
		e.Bool(p.Glasses.BlueLightFilter)
		e.ObjEnd()
	case p.Sunglasses != nil:
		s := p.Sunglasses
		e.FieldStart("sunglasses")
		e.ObjStart()
		encodeFrame(e, s.Frame)
		e.FieldStart("polarized")
		e.Bool(s.Polarized)
		e.FieldStart("uv_protection")
		e.Str(s.UVProtection)
		e.FieldStart("lens_tint")
		e.Str(s.LensTint)
		e.ObjEnd()
	case p.ContactLenses != nil:
		c := p.ContactLenses
		e.FieldStart("contact_lenses")
		e.ObjStart()
		e.FieldStart("replacement")
		e.Str(string(c.Replacement))
		e.FieldStart("pack_size")
		e.Int(c.PackSize)
		e.FieldStart("base_curve")
		e.Str(c.BaseCurve.String())
		e.FieldStart("diameter")
		e.Str(c.Diameter.String())
		e.FieldStart("material")
		e.Str(c.Material)
		e.ObjEnd()
	}

	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

func encodeFrame(e *jx.Encoder, f product.Frame) {
	e.FieldStart("frame")
	e.ObjStart()
	e.FieldStart("shape")
	e.Str(f.Shape)
	e.FieldStart("material")
	e.Str(f.Material)
	e.FieldStart("color")
	e.Str(f.Color)
	e.FieldStart("lens_width_mm")
	e.Int(f.LensWidthMM)
	e.FieldStart("bridge_width_mm")
	e.Int(f.BridgeWidthMM)
	e.FieldStart("temple_length_mm")
	e.Int(f.TempleLengthMM)
	e.ObjEnd()
}

// productDecoder fills p from a request body. Unknown fields are skipped.
func productDecoder(p *product.Product) func(d *jx.Decoder, key string) error {
	return func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "sku":
			p.SKU, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "brand":
			p.Brand, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "category":
			var c string
			c, err = d.Str()
			p.Category = product.Category(c)
		case "price":
			p.Price, err = decodeDecimal(d)
		case "stock":
			p.Stock, err = d.Int()
		case "active":
			p.Active, err = d.Bool()
		case "glasses":
			p.Glasses = &product.Glasses{}
			err = d.ObjBytes(func(d *jx.Decoder, k []byte) error {
				switch string(k) {
				case "frame":
					return decodeFrame(d, &p.Glasses.Frame)
				case "blue_light_filter":
					v, err := d.Bool()
					p.Glasses.BlueLightFilter = v
					return err
				default:
					return d.Skip()
				}
			})
		case "sunglasses":
			s := &product.Sunglasses{}
			p.Sunglasses = s
			err = d.ObjBytes(func(d *jx.Decoder, k []byte) error {
				var err error
				switch string(k) {
				case "frame":
					err = decodeFrame(d, &s.Frame)
				case "polarized":
					s.Polarized, err = d.Bool()
				case "uv_protection":
					s.UVProtection, err = d.Str()
				case "lens_tint":
					s.LensTint, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "contact_lenses":
			c := &product.ContactLenses{}
			p.ContactLenses = c
			err = d.ObjBytes(func(d *jx.Decoder, k []byte) error {
				var err error
				switch string(k) {
				case "replacement":
					var v string
					v, err = d.Str()
					c.Replacement = product.Replacement(v)
				case "pack_size":
					c.PackSize, err = d.Int()
				case "base_curve":
					c.BaseCurve, err = decodeDecimal(d)
				case "diameter":
					c.Diameter, err = decodeDecimal(d)
				case "material":
					c.Material, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		default:
			err = d.Skip()
		}
		return err
	}
}

func decodeFrame(d *jx.Decoder, f *product.Frame) error {
	return d.ObjBytes(func(d *jx.Decoder, k []byte) error {
		var err error
		switch string(k) {
		case "shape":
			f.Shape, err = d.Str()
		case "material":
			f.Material, err = d.Str()
		case "color":
			f.Color, err = d.Str()
		case "lens_width_mm":
			f.LensWidthMM, err = d.Int()
		case "bridge_width_mm":
			f.BridgeWidthMM, err = d.Int()
		case "temple_length_mm":
			f.TempleLengthMM, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
}
