package product

import (
	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
)

var (
	errNegative        = errors.New("must not be negative")
	errPositive        = errors.New("must be greater than 0")
	errUnknownCategory = errors.New("unknown category")
	errUnknownSchedule = errors.New("unknown replacement schedule")
	errSubtypeMismatch = errors.New("does not match category")
	errSubtypeMissing  = errors.New("required for category")
)

var (
	nameRule           = validate.String{MinLength: 1, MinLengthSet: true, MaxLength: 200, MaxLengthSet: true}
	skuRule            = validate.String{MinLength: 1, MinLengthSet: true, MaxLength: 64, MaxLengthSet: true}
	nonNegativeIntRule = validate.Int{MinSet: true, Min: 0}
	positiveIntRule    = validate.Int{MinSet: true, Min: 1}
)

// Validate checks field-level constraints and the category discriminator.
// It returns *validate.Error listing every failing field.
func (p *Product) Validate() error {
	var failures []validate.FieldError
	add := func(name string, err error) {
		failures = append(failures, validate.FieldError{Name: name, Error: err})
	}

	if err := nameRule.Validate(p.Name); err != nil {
		add("name", err)
	}
	if err := skuRule.Validate(p.SKU); err != nil {
		add("sku", err)
	}
	if p.Price.IsNegative() {
		add("price", errNegative)
	}
	if err := nonNegativeIntRule.Validate(int64(p.Stock)); err != nil {
		add("stock", err)
	}

	switch p.Category {
	case CategoryGlasses:
		if p.Glasses == nil {
			add("glasses", errSubtypeMissing)
		} else {
			validateFrame("glasses.frame", p.Glasses.Frame, add)
		}
		if p.Sunglasses != nil {
			add("sunglasses", errSubtypeMismatch)
		}
		if p.ContactLenses != nil {
			add("contact_lenses", errSubtypeMismatch)
		}
	case CategorySunglasses:
		if p.Sunglasses == nil {
			add("sunglasses", errSubtypeMissing)
		} else {
			validateFrame("sunglasses.frame", p.Sunglasses.Frame, add)
		}
		if p.Glasses != nil {
			add("glasses", errSubtypeMismatch)
		}
		if p.ContactLenses != nil {
			add("contact_lenses", errSubtypeMismatch)
		}
	case CategoryContactLenses:
		if p.ContactLenses == nil {
			add("contact_lenses", errSubtypeMissing)
		} else {
			cl := p.ContactLenses
			if !cl.Replacement.Valid() {
				add("contact_lenses.replacement", errUnknownSchedule)
			}
			if err := positiveIntRule.Validate(int64(cl.PackSize)); err != nil {
				add("contact_lenses.pack_size", errPositive)
			}
			if cl.BaseCurve.IsNegative() {
				add("contact_lenses.base_curve", errNegative)
			}
			if cl.Diameter.IsNegative() {
				add("contact_lenses.diameter", errNegative)
			}
		}
		if p.Glasses != nil {
			add("glasses", errSubtypeMismatch)
		}
		if p.Sunglasses != nil {
			add("sunglasses", errSubtypeMismatch)
		}
	default:
		add("category", errUnknownCategory)
	}

	if len(failures) > 0 {
		return &validate.Error{Fields: failures}
	}
	return nil
}

func validateFrame(prefix string, f Frame, add func(string, error)) {
	dims := []struct {
		name string
		v    int
	}{
		{"lens_width_mm", f.LensWidthMM},
		{"bridge_width_mm", f.BridgeWidthMM},
		{"temple_length_mm", f.TempleLengthMM},
	}
	for _, d := range dims {
		if d.v < 0 {
			add(prefix+"."+d.name, errNegative)
		}
	}
}
