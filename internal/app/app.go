package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/eyewear-store/internal/domain/auth"
	"github.com/xenking/eyewear-store/internal/domain/order"
	"github.com/xenking/eyewear-store/internal/domain/payment"
	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
	"github.com/xenking/eyewear-store/internal/domain/settings"
	"github.com/xenking/eyewear-store/internal/domain/user"
	"github.com/xenking/eyewear-store/internal/handler"
	"github.com/xenking/eyewear-store/internal/payment/stripe"
	"github.com/xenking/eyewear-store/internal/repository"
	"github.com/xenking/eyewear-store/internal/storage"
	"github.com/xenking/eyewear-store/pkg/health"
	"github.com/xenking/eyewear-store/pkg/httpmiddleware"
)

const serviceName = "eyewear-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Object storage is optional; image endpoints answer 503 without it.
	var images storage.Storage
	if cfg.Storage.Enabled() {
		mc, err := storage.NewMinIO(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return errors.Wrap(err, "connect object storage")
		}
		images = mc
	} else {
		lg.Warn("Object storage not configured, image uploads disabled")
	}

	// Health monitor.
	monitor := health.NewMonitor()
	monitor.Liveness(health.Check{Name: "goroutines", Timeout: time.Second, Func: health.GoroutineCount(10000)})
	monitor.Readiness(health.Check{Name: "postgres", Timeout: 5 * time.Second, Func: health.Ping(pool)})
	if images != nil {
		monitor.Readiness(health.Check{Name: "storage", Timeout: 5 * time.Second, Func: health.Ping(images)})
	}
	monitor.Start(ctx, 10*time.Second)
	defer monitor.Stop()

	deps, err := buildDeps(cfg, repository.NewTxManager(pool), newRepos(pool), images, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	if deps.Webhooks == nil {
		lg.Warn("Stripe not configured, checkout and webhooks disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: newRouter(ctx, routerDeps{
			cfg:     cfg,
			lg:      lg,
			tp:      m.TracerProvider(),
			mp:      m.MeterProvider(),
			reg:     reg,
			monitor: monitor,
			api: handler.New(handler.Config{
				ImageBaseURL:  cfg.ImageBaseURL,
				PresignExpiry: cfg.PresignExpiry,
				MaxImageBytes: cfg.MaxImageBytes,
			}, deps),
		}),
	}
	monitor.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		monitor.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// repos are the PostgreSQL repositories behind the services.
type repos struct {
	products   *repository.ProductRepository
	promotions *repository.PromotionRepository
	orders     *repository.OrderRepository
	users      *repository.UserRepository
	keys       *repository.APIKeyRepository
	settings   *repository.SettingsRepository
	events     *repository.PaymentEventRepository
}

func newRepos(pool *pgxpool.Pool) repos {
	return repos{
		products:   repository.NewProductRepository(pool),
		promotions: repository.NewPromotionRepository(pool),
		orders:     repository.NewOrderRepository(pool),
		users:      repository.NewUserRepository(pool),
		keys:       repository.NewAPIKeyRepository(pool),
		settings:   repository.NewSettingsRepository(pool),
		events:     repository.NewPaymentEventRepository(pool),
	}
}

// buildDeps creates the domain services. Webhooks, Reconciler and the order
// payment provider stay nil unless Stripe is configured.
func buildDeps(
	cfg *Config,
	tx payment.Transactor,
	r repos,
	images storage.Storage,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (handler.Deps, error) {
	keys := auth.NewKeys(r.keys, []byte(cfg.APIKeyPepper))
	promotions := promotion.NewService(r.promotions)
	settingsSvc := settings.NewService(r.settings)

	deps := handler.Deps{
		Products:   product.NewService(r.products, images),
		Promotions: promotions,
		Users:      user.NewService(r.users, keys),
		Settings:   settingsSvc,
		Auth:       keys,
	}

	var payments order.PaymentProvider
	if cfg.Stripe.Enabled() {
		sc, err := stripe.New(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
			Tolerance:     cfg.Stripe.Tolerance,
		})
		if err != nil {
			return handler.Deps{}, errors.Wrap(err, "create stripe client")
		}
		rec, err := payment.NewReconciler(tx, r.events, r.orders, r.products, mp.Meter("eyewear/payment"))
		if err != nil {
			return handler.Deps{}, errors.Wrap(err, "create reconciler")
		}
		payments = sc
		deps.Webhooks = sc
		deps.Reconciler = rec
	}

	deps.Orders = order.NewService(r.products, promotions, settingsSvc, r.orders, payments, tp.Tracer("eyewear/order"))
	return deps, nil
}

type routerDeps struct {
	cfg     *Config
	lg      *zap.Logger
	tp      trace.TracerProvider
	mp      metric.MeterProvider
	reg     *prometheus.Registry
	monitor *health.Monitor
	api     *handler.Handler
}

// newRouter mounts the API, health and metrics endpoints behind the
// middleware chain. Operational endpoints and the payment webhook are not
// rate limited.
func newRouter(ctx context.Context, d routerDeps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", d.monitor.LiveHandler)
	mux.HandleFunc("GET /readyz", d.monitor.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.reg, promhttp.HandlerOpts{Registry: d.reg}))
	d.api.Register(mux)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(d.lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     d.cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
			ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
			AllowCredentials: d.cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    d.cfg.RateLimit.Max,
			Window: d.cfg.RateLimit.Window,
			Skip:   exemptFromRateLimit,
		}),
		httpmiddleware.Instrument(serviceName, d.tp, d.mp),
		httpmiddleware.Labeler(),
		httpmiddleware.LogRequests(),
		httpmiddleware.Metrics(d.reg),
	)
}

func exemptFromRateLimit(r *http.Request) bool {
	switch r.URL.Path {
	case "/livez", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/webhooks/")
}
