// Package settings holds the store-wide configuration edited from the admin
// back-office.
package settings

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by repositories when no settings row was saved yet.
var ErrNotFound = errors.New("settings not found")

// Settings is the singleton store configuration.
type Settings struct {
	StoreName             string
	Currency              string
	ShippingFlatRate      decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	CheckoutEnabled       bool
	SupportEmail          string
	UpdatedAt             time.Time
}

// Default returns the settings used before an administrator saves any.
func Default() Settings {
	return Settings{
		StoreName:             "Eyewear Store",
		Currency:              "EUR",
		ShippingFlatRate:      decimal.RequireFromString("4.90"),
		FreeShippingThreshold: decimal.RequireFromString("100.00"),
		CheckoutEnabled:       true,
	}
}

// ShippingFor returns the shipping fee for a merchandise total. A zero
// threshold disables free shipping.
func (s *Settings) ShippingFor(merchandise decimal.Decimal) decimal.Decimal {
	if s.FreeShippingThreshold.IsPositive() && merchandise.GreaterThanOrEqual(s.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.ShippingFlatRate
}

var (
	errNegative = errors.New("must not be negative")
	errCurrency = errors.New("must be a 3-letter ISO 4217 code")
	errEmail    = errors.New("invalid email address")
)

var storeRule = validate.String{MinLength: 1, MinLengthSet: true, MaxLength: 120, MaxLengthSet: true}

// Validate checks every field.
func (s *Settings) Validate() error {
	var failures []validate.FieldError
	add := func(name string, err error) {
		failures = append(failures, validate.FieldError{Name: name, Error: err})
	}
	if err := storeRule.Validate(s.StoreName); err != nil {
		add("store_name", err)
	}
	if !isCurrencyCode(s.Currency) {
		add("currency", errCurrency)
	}
	if s.ShippingFlatRate.IsNegative() {
		add("shipping_flat_rate", errNegative)
	}
	if s.FreeShippingThreshold.IsNegative() {
		add("free_shipping_threshold", errNegative)
	}
	if s.SupportEmail != "" {
		if addr, err := mail.ParseAddress(s.SupportEmail); err != nil || addr.Address != s.SupportEmail {
			add("support_email", errEmail)
		}
	}
	if len(failures) > 0 {
		return &validate.Error{Fields: failures}
	}
	return nil
}

func isCurrencyCode(c string) bool {
	if len(c) != 3 {
		return false
	}
	for i := range len(c) {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

// Repository persists the settings row.
type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}

// Service reads and updates settings.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a settings Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the saved settings or the defaults.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	st, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			d := Default()
			return &d, nil
		}
		return nil, errors.Wrap(err, "get settings")
	}
	return st, nil
}

// Update validates and saves st.
func (s *Service) Update(ctx context.Context, st *Settings) error {
	st.Currency = strings.ToUpper(strings.TrimSpace(st.Currency))
	st.ShippingFlatRate = st.ShippingFlatRate.Round(2)
	st.FreeShippingThreshold = st.FreeShippingThreshold.Round(2)
	if err := st.Validate(); err != nil {
		return err
	}
	st.UpdatedAt = s.now().UTC()
	if err := s.repo.Save(ctx, st); err != nil {
		return errors.Wrap(err, "save settings")
	}
	return nil
}
