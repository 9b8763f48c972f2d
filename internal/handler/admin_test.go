package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
	"github.com/xenking/eyewear-store/internal/domain/settings"
	"github.com/xenking/eyewear-store/internal/domain/user"
)

func summerSale() *promotion.Promotion {
	return &promotion.Promotion{
		ID:       "summer",
		Name:     "Summer",
		StartsAt: fixedTime,
		EndsAt:   fixedTime.Add(30 * 24 * time.Hour),
		Active:   true,
		Tiers: []promotion.Tier{
			{Category: product.CategorySunglasses, OriginalPrice: dec("150"), DiscountedPrice: dec("99"), PairPrice: dec("169")},
			{Category: product.CategoryGlasses, OriginalPrice: dec("200"), DiscountedPrice: dec("149")},
		},
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

func TestCurrentPromotion(t *testing.T) {
	promos := &fakePromotions{current: summerSale()}
	mux := newMux(Config{}, Deps{Promotions: promos})

	w := call(t, mux, http.MethodGet, "/api/promotions/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{
		"id":"summer","name":"Summer","description":"",
		"starts_at":"2026-05-01T10:00:00Z","ends_at":"2026-05-31T10:00:00Z","active":true,
		"tiers":[
			{"category":"sunglasses","original_price":"150.00","discounted_price":"99.00","pair_price":"169.00"},
			{"category":"glasses","original_price":"200.00","discounted_price":"149.00","pair_price":null}
		],
		"created_at":"2026-05-01T10:00:00Z","updated_at":"2026-05-01T10:00:00Z"
	}}`, w.Body.String())

	promos.current = nil
	w = call(t, mux, http.MethodGet, "/api/promotions/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":null}`, w.Body.String())
}

func TestPromotionCRUD(t *testing.T) {
	promos := &fakePromotions{byID: map[string]*promotion.Promotion{"summer": summerSale()}}
	mux := newMux(Config{}, Deps{Promotions: promos})

	w := call(t, mux, http.MethodPost, "/api/admin/promotions", `{
		"name": "Winter",
		"starts_at": "2026-12-01T00:00:00Z",
		"ends_at": "2026-12-31T23:59:59Z",
		"tiers": [{"category": "glasses", "original_price": 120, "discounted_price": "89.90", "pair_price": 150}]
	}`, asAdmin()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, promos.created)
	assert.True(t, promos.created.Active)
	assert.True(t, promos.created.Tiers[0].DiscountedPrice.Equal(dec("89.9")))
	assert.Contains(t, w.Body.String(), `"pair_price":"150.00"`)

	w = call(t, mux, http.MethodPost, "/api/admin/promotions", `{"name":"Broken","starts_at":"2026-12-31T00:00:00Z","ends_at":"2026-12-01T00:00:00Z"}`, asAdmin()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, mux, http.MethodPost, "/api/admin/promotions", `{"starts_at":"yesterday"}`, asAdmin()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "starts_at")

	w = call(t, mux, http.MethodGet, "/api/admin/promotions/summer", "", asAdmin()...)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(t, mux, http.MethodGet, "/api/admin/promotions", "", asAdmin()...)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"summer"`)

	w = call(t, mux, http.MethodPut, "/api/admin/promotions/summer", `{"name":"Summer+","active":false}`, asAdmin()...)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, promos.byID["summer"].Active)

	w = call(t, mux, http.MethodDelete, "/api/admin/promotions/summer", "", asAdmin()...)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = call(t, mux, http.MethodGet, "/api/admin/promotions/summer", "", asAdmin()...)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"promotion not found"}`, w.Body.String())
}

func TestUserCRUD(t *testing.T) {
	users := &fakeUsers{byID: map[string]*user.User{
		"u1": {ID: "u1", Email: "admin@example.com", Role: user.RoleAdmin, CreatedAt: fixedTime, UpdatedAt: fixedTime},
	}}
	mux := newMux(Config{}, Deps{Users: users})

	w := call(t, mux, http.MethodPost, "/api/admin/users", `{"email":"ana@example.com","name":"Ana"}`, asAdmin()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"customer"`)

	w = call(t, mux, http.MethodPost, "/api/admin/users", `{"email":"ana@example.com"}`, asAdmin()...)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = call(t, mux, http.MethodPost, "/api/admin/users", `{"email":"not-an-email"}`, asAdmin()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(t, mux, http.MethodGet, "/api/admin/users/user-new", "", asAdmin()...)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(t, mux, http.MethodGet, "/api/admin/users?limit=2", "", asAdmin()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":2,"limit":2`)

	w = call(t, mux, http.MethodPut, "/api/admin/users/user-new", `{"email":"ana@example.com","name":"Ana B","role":"customer"}`, asAdmin()...)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ana B", users.byID["user-new"].Name)

	w = call(t, mux, http.MethodDelete, "/api/admin/users/user-new", "", asAdmin()...)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = call(t, mux, http.MethodDelete, "/api/admin/users/user-new", "", asAdmin()...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueKey(t *testing.T) {
	users := &fakeUsers{byID: map[string]*user.User{
		"u1": {ID: "u1", Email: "admin@example.com", Role: user.RoleAdmin},
		"u2": {ID: "u2", Email: "ana@example.com", Role: user.RoleCustomer},
	}}
	mux := newMux(Config{}, Deps{Users: users})

	w := call(t, mux, http.MethodPost, "/api/admin/users/u1/api-keys", `{"name":"ci","scopes":["admin"]}`, asAdmin()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"success":true,"data":{
		"id":"key-1","user_id":"u1","name":"ci","scopes":["admin"],"key":"eys_raw",
		"created_at":"2026-05-01T10:00:00Z"
	}}`, w.Body.String())

	w = call(t, mux, http.MethodPost, "/api/admin/users/u2/api-keys", `{"name":"ci","scopes":["admin"]}`, asAdmin()...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(t, mux, http.MethodPost, "/api/admin/users/u9/api-keys", `{"name":"ci"}`, asAdmin()...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, mux, http.MethodPost, "/api/admin/users/u1/api-keys", `{"scopes":"admin"}`, asAdmin()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"ci"}, users.issued)
}

func TestSettings(t *testing.T) {
	st := &fakeSettings{st: settings.Default()}
	mux := newMux(Config{}, Deps{Settings: st})

	w := call(t, mux, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{
		"store_name":"Eyewear Store","currency":"EUR",
		"shipping_flat_rate":"4.90","free_shipping_threshold":"100.00",
		"checkout_enabled":true,"support_email":"","updated_at":null
	}}`, w.Body.String())

	w = call(t, mux, http.MethodPut, "/api/settings", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = call(t, mux, http.MethodPut, "/api/admin/settings", `{"checkout_enabled":false,"free_shipping_threshold":"0"}`, asAdmin()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, st.saved)
	assert.False(t, st.saved.CheckoutEnabled)
	assert.True(t, st.saved.FreeShippingThreshold.IsZero())
	assert.Equal(t, "EUR", st.saved.Currency, "fields absent from the body are kept")

	w = call(t, mux, http.MethodPut, "/api/admin/settings", `{"currency":"euro"}`, asAdmin()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "currency")

	w = call(t, mux, http.MethodGet, "/api/admin/settings", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
