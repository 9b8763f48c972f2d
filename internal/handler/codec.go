package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	ogenjson "github.com/ogen-go/ogen/json"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
)

// decodeBody reads a JSON object body and calls fn for every field.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return badRequest(errors.Wrap(err, "read body"))
	}
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := string(key)
		if err := fn(d, k); err != nil {
			return errors.Wrap(err, k)
		}
		return nil
	}); err != nil {
		return badRequest(err)
	}
	return nil
}

// decodeDecimal accepts a JSON string or number.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.New("expected decimal")
	}
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	return ogenjson.DecodeDateTime(d)
}

// Money is always rendered as a string with two decimals.
func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	ogenjson.EncodeDateTime(e, t.UTC())
}

func encodeOptTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	encodeTime(e, *t)
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	var fields []validate.FieldError
	parse := func(name string) int {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return 0
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			fields = append(fields, validate.FieldError{Name: name, Error: errors.New("must be a non-negative integer")})
			return 0
		}
		return v
	}
	limit, offset = parse("limit"), parse("offset")
	if len(fields) > 0 {
		return 0, 0, &validate.Error{Fields: fields}
	}
	return limit, offset, nil
}

// encodePage writes {"items":[...],"total":n,"limit":l,"offset":o}.
func encodePage(e *jx.Encoder, total, limit, offset int, items func(e *jx.Encoder)) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	items(e)
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(total)
	e.FieldStart("limit")
	e.Int(limit)
	e.FieldStart("offset")
	e.Int(offset)
	e.ObjEnd()
}

// effectiveLimit mirrors the clamping done by the services.
func effectiveLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
