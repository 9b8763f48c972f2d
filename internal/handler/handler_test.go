package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xenking/eyewear-store/internal/domain/auth"
	"github.com/xenking/eyewear-store/internal/domain/order"
	"github.com/xenking/eyewear-store/internal/domain/payment"
	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
	"github.com/xenking/eyewear-store/internal/domain/settings"
	"github.com/xenking/eyewear-store/internal/domain/user"
	"github.com/xenking/eyewear-store/internal/storage"
)

// --- Mock implementations ---

type mockProducts struct {
	mock.Mock
}

func (m *mockProducts) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	args := m.Called(ctx, f)
	list, _ := args.Get(0).([]product.Product)
	return list, args.Int(1), args.Error(2)
}

func (m *mockProducts) Get(ctx context.Context, id string) (*product.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*product.Product)
	return p, args.Error(1)
}

func (m *mockProducts) Create(ctx context.Context, p *product.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProducts) Update(ctx context.Context, p *product.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProducts) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockProducts) UploadImage(ctx context.Context, id string, img product.Image) (*product.Product, error) {
	args := m.Called(ctx, id, img)
	p, _ := args.Get(0).(*product.Product)
	return p, args.Error(1)
}

func (m *mockProducts) OpenImage(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, id)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Get(1).(storage.ObjectInfo), args.Error(2)
}

func (m *mockProducts) ImageURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, key, expiry)
	return args.String(0), args.Error(1)
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Quote(ctx context.Context, items []order.LineItem) (*order.QuoteResult, error) {
	args := m.Called(ctx, items)
	q, _ := args.Get(0).(*order.QuoteResult)
	return q, args.Error(1)
}

func (m *mockOrders) Checkout(ctx context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*order.CheckoutResult)
	return res, args.Error(1)
}

func (m *mockOrders) Get(ctx context.Context, id string) (*order.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*order.Order)
	return o, args.Error(1)
}

func (m *mockOrders) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	args := m.Called(ctx, f)
	list, _ := args.Get(0).([]order.Order)
	return list, args.Int(1), args.Error(2)
}

func (m *mockOrders) UpdateStatus(ctx context.Context, id string, next order.Status) (*order.Order, error) {
	args := m.Called(ctx, id, next)
	o, _ := args.Get(0).(*order.Order)
	return o, args.Error(1)
}

type fakePromotions struct {
	current *promotion.Promotion
	byID    map[string]*promotion.Promotion
	created *promotion.Promotion
	err     error
}

func (f *fakePromotions) Current(context.Context) (*promotion.Promotion, error) {
	return f.current, f.err
}

func (f *fakePromotions) List(context.Context) ([]promotion.Promotion, error) {
	var out []promotion.Promotion
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, f.err
}

func (f *fakePromotions) Get(_ context.Context, id string) (*promotion.Promotion, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, promotion.ErrNotFound
}

func (f *fakePromotions) Create(_ context.Context, p *promotion.Promotion) error {
	if f.err != nil {
		return f.err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = "promo-new"
	f.created = p
	return nil
}

func (f *fakePromotions) Update(_ context.Context, p *promotion.Promotion) error {
	if _, ok := f.byID[p.ID]; !ok {
		return promotion.ErrNotFound
	}
	f.byID[p.ID] = p
	return nil
}

func (f *fakePromotions) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return promotion.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeUsers struct {
	byID   map[string]*user.User
	issued []string
}

func (f *fakeUsers) List(_ context.Context, _, _ int) ([]user.User, int, error) {
	var out []user.User
	for _, u := range f.byID {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUsers) Get(_ context.Context, id string) (*user.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) Create(_ context.Context, u *user.User) error {
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}
	if u.Role == "" {
		u.Role = user.RoleCustomer
	}
	if err := u.Validate(); err != nil {
		return err
	}
	u.ID = "user-new"
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u *user.User) error {
	if _, ok := f.byID[u.ID]; !ok {
		return user.ErrNotFound
	}
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return user.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUsers) IssueKey(_ context.Context, userID, name string, scopes []string) (string, *auth.APIKey, error) {
	u, ok := f.byID[userID]
	if !ok {
		return "", nil, user.ErrNotFound
	}
	if len(scopes) > 0 && u.Role != user.RoleAdmin {
		return "", nil, auth.ErrForbidden
	}
	f.issued = append(f.issued, name)
	return "eys_raw", &auth.APIKey{ID: "key-1", UserID: userID, Name: name, Scopes: scopes, Active: true, CreatedAt: fixedTime}, nil
}

type fakeSettings struct {
	st    settings.Settings
	saved *settings.Settings
}

func (f *fakeSettings) Get(context.Context) (*settings.Settings, error) {
	st := f.st
	return &st, nil
}

func (f *fakeSettings) Update(_ context.Context, st *settings.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	f.saved = st
	return nil
}

// fakeAuth accepts adminKey with the admin scope and readerKey without it.
type fakeAuth struct{}

const (
	adminKey  = "eys_admin"
	readerKey = "eys_reader"
)

func (fakeAuth) Authenticate(_ context.Context, raw string) (*auth.Principal, error) {
	switch raw {
	case adminKey:
		return &auth.Principal{KeyID: "k-admin", UserID: "u-admin", Scopes: []string{auth.ScopeAdmin}}, nil
	case readerKey:
		return &auth.Principal{KeyID: "k-reader", UserID: "u-reader"}, nil
	default:
		return nil, auth.ErrUnauthorized
	}
}

type fakeParser struct {
	ev  *payment.Event
	err error
	sig string
}

func (f *fakeParser) ParseEvent(_ []byte, signature string) (*payment.Event, error) {
	f.sig = signature
	return f.ev, f.err
}

type fakeReconciler struct {
	outcome payment.Outcome
	err     error
	got     *payment.Event
}

func (f *fakeReconciler) Reconcile(_ context.Context, ev *payment.Event) (payment.Outcome, error) {
	f.got = ev
	return f.outcome, f.err
}

// --- Helpers ---

var fixedTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newMux(cfg Config, deps Deps) *http.ServeMux {
	if deps.Auth == nil {
		deps.Auth = fakeAuth{}
	}
	mux := http.NewServeMux()
	New(cfg, deps).Register(mux)
	return mux
}

// call performs a request. hdr is a list of header name/value pairs.
func call(t *testing.T, h http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	require.Zero(t, len(hdr)%2, "header pairs")

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func asAdmin() []string {
	return []string{"Authorization", "Bearer " + adminKey}
}
