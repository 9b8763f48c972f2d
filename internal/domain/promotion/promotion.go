// Package promotion models time-windowed pricing campaigns.
//
// A Promotion carries price tiers for glasses and sunglasses: every product
// listed at a tier's original price sells at the tier's discounted price
// while the campaign runs, and two units of the same tier can be bundled at
// a pair price.
package promotion

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"

	"github.com/xenking/eyewear-store/internal/domain/product"
)

// ErrNotFound is returned when a promotion does not exist or none is running.
var ErrNotFound = errors.New("promotion not found")

// Tier reprices one price point of one category.
type Tier struct {
	Category        product.Category `json:"category"`
	OriginalPrice   decimal.Decimal  `json:"original_price"`
	DiscountedPrice decimal.Decimal  `json:"discounted_price"`
	// PairPrice is the price of two units of this tier bought together.
	// Zero disables the bundle.
	PairPrice decimal.Decimal `json:"pair_price"`
}

// HasBundle reports whether the tier offers "buy two" pricing.
func (t Tier) HasBundle() bool {
	return t.PairPrice.IsPositive()
}

// Matches reports whether p is repriced by this tier.
func (t Tier) Matches(p product.Product) bool {
	return p.Category == t.Category && p.Price.Equal(t.OriginalPrice)
}

// Promotion is a pricing campaign active between StartsAt and EndsAt.
type Promotion struct {
	ID          string
	Name        string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
	Active      bool
	Tiers       []Tier
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsRunningAt reports whether the promotion applies at t. Both window
// boundaries are inclusive.
func (p *Promotion) IsRunningAt(t time.Time) bool {
	if !p.Active {
		return false
	}
	return !t.Before(p.StartsAt) && !t.After(p.EndsAt)
}

// TierFor returns the tier repricing item, if any.
func (p *Promotion) TierFor(item product.Product) (Tier, bool) {
	for _, t := range p.Tiers {
		if t.Matches(item) {
			return t, true
		}
	}
	return Tier{}, false
}

var (
	errRequired      = errors.New("is required")
	errWindow        = errors.New("must be after starts_at")
	errNoTiers       = errors.New("at least one tier is required")
	errTierCategory  = errors.New("only glasses and sunglasses can be promoted")
	errTierNegative  = errors.New("must not be negative")
	errTierAboveOrig = errors.New("must not exceed original_price")
	errTierPair      = errors.New("must not exceed twice the discounted price")
	errTierDuplicate = errors.New("duplicate tier for category and original price")
)

var (
	nameRule = validate.String{MinLength: 1, MinLengthSet: true, MaxLength: 120, MaxLengthSet: true}
	twoUnits = decimal.NewFromInt(2)
)

// Validate checks the window and every tier.
func (p *Promotion) Validate() error {
	var failures []validate.FieldError
	add := func(name string, err error) {
		failures = append(failures, validate.FieldError{Name: name, Error: err})
	}

	if err := nameRule.Validate(p.Name); err != nil {
		add("name", err)
	}
	if p.StartsAt.IsZero() {
		add("starts_at", errRequired)
	}
	if !p.EndsAt.After(p.StartsAt) {
		add("ends_at", errWindow)
	}
	if len(p.Tiers) == 0 {
		add("tiers", errNoTiers)
	}

	type tierKey struct {
		category product.Category
		price    string
	}
	seen := make(map[tierKey]struct{}, len(p.Tiers))
	for i, t := range p.Tiers {
		field := func(name string) string {
			return "tiers[" + strconv.Itoa(i) + "]." + name
		}
		if t.Category != product.CategoryGlasses && t.Category != product.CategorySunglasses {
			add(field("category"), errTierCategory)
		}
		if t.OriginalPrice.IsNegative() {
			add(field("original_price"), errTierNegative)
		}
		if t.DiscountedPrice.IsNegative() {
			add(field("discounted_price"), errTierNegative)
		} else if t.DiscountedPrice.GreaterThan(t.OriginalPrice) {
			add(field("discounted_price"), errTierAboveOrig)
		}
		if t.PairPrice.IsNegative() {
			add(field("pair_price"), errTierNegative)
		} else if t.HasBundle() && t.PairPrice.GreaterThan(t.DiscountedPrice.Mul(twoUnits)) {
			add(field("pair_price"), errTierPair)
		}

		k := tierKey{category: t.Category, price: t.OriginalPrice.StringFixed(2)}
		if _, dup := seen[k]; dup {
			add(field("original_price"), errTierDuplicate)
		}
		seen[k] = struct{}{}
	}

	if len(failures) > 0 {
		return &validate.Error{Fields: failures}
	}
	return nil
}

// Repository defines persistence operations for promotions.
type Repository interface {
	List(ctx context.Context) ([]Promotion, error)
	GetByID(ctx context.Context, id string) (*Promotion, error)
	Create(ctx context.Context, p *Promotion) error
	Update(ctx context.Context, p *Promotion) error
	Delete(ctx context.Context, id string) error
	// FindRunning returns the promotion running at t with the latest start.
	// It returns ErrNotFound when nothing runs.
	FindRunning(ctx context.Context, at time.Time) (*Promotion, error)
}
