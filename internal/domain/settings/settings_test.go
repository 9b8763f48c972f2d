package settings

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/validate"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	current *Settings
	getErr  error
	saved   *Settings
	saveErr error
}

func (m *mockRepo) Get(context.Context) (*Settings, error) { return m.current, m.getErr }

func (m *mockRepo) Save(_ context.Context, s *Settings) error {
	m.saved = s
	return m.saveErr
}

func TestSettings_ShippingFor(t *testing.T) {
	s := Default()

	assert.Equal(t, "4.90", s.ShippingFor(decimal.RequireFromString("99.99")).StringFixed(2))
	assert.True(t, s.ShippingFor(decimal.RequireFromString("100.00")).IsZero(), "threshold is inclusive")

	s.FreeShippingThreshold = decimal.Zero
	assert.Equal(t, "4.90", s.ShippingFor(decimal.RequireFromString("10000")).StringFixed(2),
		"zero threshold disables free shipping")
}

func TestService_GetFallsBackToDefault(t *testing.T) {
	svc := NewService(&mockRepo{getErr: ErrNotFound})

	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.Currency)
	assert.True(t, got.CheckoutEnabled)
}

func TestService_GetError(t *testing.T) {
	svc := NewService(&mockRepo{getErr: errors.New("conn reset")})

	_, err := svc.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get settings")
}

func TestService_Update(t *testing.T) {
	fixed := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)

	tests := []struct {
		name       string
		in         Settings
		wantFields []string
	}{
		{
			name: "normalizes currency",
			in: Settings{
				StoreName:        "Opticians",
				Currency:         " usd ",
				ShippingFlatRate: decimal.RequireFromString("5"),
			},
		},
		{
			name: "rejects bad values",
			in: Settings{
				Currency:              "EURO",
				ShippingFlatRate:      decimal.RequireFromString("-1"),
				FreeShippingThreshold: decimal.RequireFromString("-1"),
				SupportEmail:          "not an email",
			},
			wantFields: []string{"store_name", "currency", "shipping_flat_rate", "free_shipping_threshold", "support_email"},
		},
		{
			name: "rejects display name support email",
			in: Settings{
				StoreName:        "Opticians",
				Currency:         "EUR",
				ShippingFlatRate: decimal.RequireFromString("5"),
				SupportEmail:     "Help Desk <help@opticians.example>",
			},
			wantFields: []string{"support_email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			svc := NewService(repo)
			svc.now = func() time.Time { return fixed }

			in := tt.in
			err := svc.Update(context.Background(), &in)
			if len(tt.wantFields) > 0 {
				var verr *validate.Error
				require.ErrorAs(t, err, &verr)
				var got []string
				for _, f := range verr.Fields {
					got = append(got, f.Name)
				}
				assert.ElementsMatch(t, tt.wantFields, got)
				assert.Nil(t, repo.saved)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, repo.saved)
			assert.Equal(t, "USD", repo.saved.Currency)
			assert.Equal(t, fixed, repo.saved.UpdatedAt)
		})
	}
}
