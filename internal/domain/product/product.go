// Package product models the eyewear catalog.
//
// A Product is a flat record discriminated by Category. Exactly one of the
// subtype sections (Glasses, Sunglasses, ContactLenses) is populated and it
// always matches the category.
package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicateSKU is returned when another product already uses the SKU.
	ErrDuplicateSKU = errors.New("sku already exists")
	// ErrInsufficientStock is returned when a stock decrement would go below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStorageDisabled is returned by image operations when no object
	// storage is configured.
	ErrStorageDisabled = errors.New("image storage is not configured")
	// ErrNoImage is returned when a product has no uploaded image.
	ErrNoImage = errors.New("product has no image")
)

// Category is the product discriminator.
type Category string

const (
	CategoryGlasses       Category = "glasses"
	CategorySunglasses    Category = "sunglasses"
	CategoryContactLenses Category = "contact_lenses"
)

// Categories lists every valid category.
var Categories = []Category{CategoryGlasses, CategorySunglasses, CategoryContactLenses}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryGlasses, CategorySunglasses, CategoryContactLenses:
		return true
	default:
		return false
	}
}

// Replacement is the wear schedule of contact lenses.
type Replacement string

const (
	ReplacementDaily    Replacement = "daily"
	ReplacementBiweekly Replacement = "biweekly"
	ReplacementMonthly  Replacement = "monthly"
)

// Valid reports whether r is an enumerated schedule.
func (r Replacement) Valid() bool {
	switch r {
	case ReplacementDaily, ReplacementBiweekly, ReplacementMonthly:
		return true
	default:
		return false
	}
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	SKU         string
	Name        string
	Brand       string
	Description string
	Category    Category
	Price       decimal.Decimal
	Stock       int
	ImageKey    string
	Active      bool

	Glasses       *Glasses
	Sunglasses    *Sunglasses
	ContactLenses *ContactLenses

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Frame describes a spectacle frame in millimetres.
type Frame struct {
	Shape          string `json:"shape,omitempty"`
	Material       string `json:"material,omitempty"`
	Color          string `json:"color,omitempty"`
	LensWidthMM    int    `json:"lens_width_mm,omitempty"`
	BridgeWidthMM  int    `json:"bridge_width_mm,omitempty"`
	TempleLengthMM int    `json:"temple_length_mm,omitempty"`
}

// Glasses are prescription or reading frames.
type Glasses struct {
	Frame           Frame `json:"frame"`
	BlueLightFilter bool  `json:"blue_light_filter"`
}

// Sunglasses are tinted frames.
type Sunglasses struct {
	Frame        Frame  `json:"frame"`
	Polarized    bool   `json:"polarized"`
	UVProtection string `json:"uv_protection,omitempty"`
	LensTint     string `json:"lens_tint,omitempty"`
}

// ContactLenses are sold in packs.
type ContactLenses struct {
	Replacement Replacement     `json:"replacement"`
	PackSize    int             `json:"pack_size"`
	BaseCurve   decimal.Decimal `json:"base_curve"`
	Diameter    decimal.Decimal `json:"diameter"`
	Material    string          `json:"material,omitempty"`
}

// InStock reports whether qty units can be sold.
func (p *Product) InStock(qty int) bool {
	return p.Stock >= qty
}

// Filter narrows a catalog listing.
type Filter struct {
	Category   Category
	ActiveOnly bool
	Query      string
	Limit      int
	Offset     int
}

// Repository defines persistence operations for the catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, int, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	SetImage(ctx context.Context, id, key string) error
	// AdjustStock adds delta to the stock level. It returns
	// ErrInsufficientStock when the result would be negative.
	AdjustStock(ctx context.Context, id string, delta int) error
}
