// Package handler exposes the storefront and back-office JSON API over
// net/http.
package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/xenking/eyewear-store/internal/domain/auth"
	"github.com/xenking/eyewear-store/internal/domain/order"
	"github.com/xenking/eyewear-store/internal/domain/payment"
	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
	"github.com/xenking/eyewear-store/internal/domain/settings"
	"github.com/xenking/eyewear-store/internal/domain/user"
	"github.com/xenking/eyewear-store/internal/storage"
)

// ProductService is the catalog used by the handlers.
type ProductService interface {
	List(ctx context.Context, f product.Filter) ([]product.Product, int, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Create(ctx context.Context, p *product.Product) error
	Update(ctx context.Context, p *product.Product) error
	Delete(ctx context.Context, id string) error
	UploadImage(ctx context.Context, id string, img product.Image) (*product.Product, error)
	OpenImage(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error)
	ImageURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// PromotionService manages pricing campaigns.
type PromotionService interface {
	Current(ctx context.Context) (*promotion.Promotion, error)
	List(ctx context.Context) ([]promotion.Promotion, error)
	Get(ctx context.Context, id string) (*promotion.Promotion, error)
	Create(ctx context.Context, p *promotion.Promotion) error
	Update(ctx context.Context, p *promotion.Promotion) error
	Delete(ctx context.Context, id string) error
}

// OrderService prices carts, checks out and administers orders.
type OrderService interface {
	Quote(ctx context.Context, items []order.LineItem) (*order.QuoteResult, error)
	Checkout(ctx context.Context, req order.CheckoutRequest) (*order.CheckoutResult, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context, f order.Filter) ([]order.Order, int, error)
	UpdateStatus(ctx context.Context, id string, next order.Status) (*order.Order, error)
}

// UserService manages accounts and their API keys.
type UserService interface {
	List(ctx context.Context, limit, offset int) ([]user.User, int, error)
	Get(ctx context.Context, id string) (*user.User, error)
	Create(ctx context.Context, u *user.User) error
	Update(ctx context.Context, u *user.User) error
	Delete(ctx context.Context, id string) error
	IssueKey(ctx context.Context, userID, name string, scopes []string) (string, *auth.APIKey, error)
}

// SettingsService reads and saves the store settings.
type SettingsService interface {
	Get(ctx context.Context) (*settings.Settings, error)
	Update(ctx context.Context, st *settings.Settings) error
}

// Authenticator resolves a raw API key to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth.Principal, error)
}

// Reconciler applies verified payment events.
type Reconciler interface {
	Reconcile(ctx context.Context, ev *payment.Event) (payment.Outcome, error)
}

// Config holds non-dependency handler settings.
type Config struct {
	// ImageBaseURL is prepended to image keys. When empty, images are served
	// through presigned URLs or the streaming endpoint.
	ImageBaseURL string
	// PresignExpiry enables presigned image URLs when positive.
	PresignExpiry time.Duration
	// MaxImageBytes caps uploads. Defaults to 5 MiB.
	MaxImageBytes int64
	// MaxBodyBytes caps JSON request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Deps are the services behind the API. Webhooks and Reconciler may be nil
// when payments are not configured.
type Deps struct {
	Products   ProductService
	Promotions PromotionService
	Orders     OrderService
	Users      UserService
	Settings   SettingsService
	Auth       Authenticator
	Webhooks   payment.Parser
	Reconciler Reconciler
}

// Handler serves the HTTP API.
type Handler struct {
	Deps
	cfg Config
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 5 << 20
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{Deps: deps, cfg: cfg}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/products/{id}/image", h.productImage)
	mux.HandleFunc("GET /api/promotions/current", h.currentPromotion)
	mux.HandleFunc("GET /api/settings", h.getSettings)
	mux.HandleFunc("POST /api/cart/quote", h.quote)
	mux.HandleFunc("POST /api/checkout", h.checkout)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/webhooks/stripe", h.stripeWebhook)

	admin := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.requireAdmin(fn))
	}
	admin("GET /api/admin/products", h.adminListProducts)
	admin("POST /api/admin/products", h.createProduct)
	admin("GET /api/admin/products/{id}", h.adminGetProduct)
	admin("PUT /api/admin/products/{id}", h.updateProduct)
	admin("DELETE /api/admin/products/{id}", h.deleteProduct)
	admin("PUT /api/admin/products/{id}/image", h.uploadProductImage)

	admin("GET /api/admin/users", h.listUsers)
	admin("POST /api/admin/users", h.createUser)
	admin("GET /api/admin/users/{id}", h.getUser)
	admin("PUT /api/admin/users/{id}", h.updateUser)
	admin("DELETE /api/admin/users/{id}", h.deleteUser)
	admin("POST /api/admin/users/{id}/api-keys", h.issueKey)

	admin("GET /api/admin/promotions", h.listPromotions)
	admin("POST /api/admin/promotions", h.createPromotion)
	admin("GET /api/admin/promotions/{id}", h.getPromotion)
	admin("PUT /api/admin/promotions/{id}", h.updatePromotion)
	admin("DELETE /api/admin/promotions/{id}", h.deletePromotion)

	admin("GET /api/admin/settings", h.getSettings)
	admin("PUT /api/admin/settings", h.updateSettings)

	admin("GET /api/admin/orders", h.listOrders)
	admin("GET /api/admin/orders/{id}", h.adminGetOrder)
	admin("POST /api/admin/orders/{id}/status", h.updateOrderStatus)
}
