// Command seed-db fills an empty database with a demo catalog, a running
// promotion, store settings and an admin account with an API key.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/eyewear-store/db"
	"github.com/xenking/eyewear-store/internal/catalogimport"
	"github.com/xenking/eyewear-store/internal/domain/auth"
	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
	"github.com/xenking/eyewear-store/internal/domain/settings"
	"github.com/xenking/eyewear-store/internal/domain/user"
	"github.com/xenking/eyewear-store/internal/repository"
)

type options struct {
	databaseURL  string
	productsFile string
	adminEmail   string
	apiKeyPepper string
	storeName    string
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.productsFile, "products-file", "", "JSON array of catalog records (defaults to the embedded demo catalog)")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@eyewear.local", "email of the seeded admin account")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or EYEWEAR_API_KEY_PEPPER env)")
	flag.StringVar(&opts.storeName, "store-name", "", "store name saved in settings")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKeyPepper == "" {
		opts.apiKeyPepper = os.Getenv("EYEWEAR_API_KEY_PEPPER")
	}
	if opts.apiKeyPepper == "" {
		slog.Error("API key pepper is required: set --api-key-pepper or EYEWEAR_API_KEY_PEPPER")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.SeedProducts
	if opts.productsFile != "" {
		if data, err = os.ReadFile(opts.productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}
	if err := seedProducts(ctx, pool, data); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedPromotion(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotion")
	}

	if err := seedSettings(ctx, pool, opts.storeName); err != nil {
		return errors.Wrap(err, "seed settings")
	}

	if err := seedAdmin(ctx, pool, opts.adminEmail, opts.apiKeyPepper); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, data []byte) error {
	svc := product.NewService(repository.NewProductRepository(pool), nil)

	var created, skipped int
	if err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		p, err := catalogimport.ParseRecord(raw)
		if err != nil {
			return errors.Wrap(err, "parse product")
		}
		if err := svc.Create(ctx, &p); err != nil {
			if errors.Is(err, product.ErrDuplicateSKU) {
				skipped++
				return nil
			}
			return errors.Wrapf(err, "create product %s", p.SKU)
		}
		created++
		slog.Info("created product", slog.String("sku", p.SKU), slog.String("name", p.Name))
		return nil
	}); err != nil {
		return err
	}

	slog.Info("products seeded", slog.Int("created", created), slog.Int("existing", skipped))
	return nil
}

// seedPromotion adds a month-long launch campaign unless any promotion
// exists already.
func seedPromotion(ctx context.Context, pool *pgxpool.Pool) error {
	svc := promotion.NewService(repository.NewPromotionRepository(pool))

	existing, err := svc.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list promotions")
	}
	if len(existing) > 0 {
		slog.Info("promotions already present, skipping", slog.Int("count", len(existing)))
		return nil
	}

	now := time.Now().UTC().Truncate(time.Hour)
	p := &promotion.Promotion{
		Name:        "Launch Month",
		Description: "Frames at 129.00 drop to 99.00, two for 179.00. Sunglasses at 149.00 drop to 119.00.",
		StartsAt:    now,
		EndsAt:      now.AddDate(0, 1, 0),
		Active:      true,
		Tiers: []promotion.Tier{
			{
				Category:        product.CategoryGlasses,
				OriginalPrice:   decimal.RequireFromString("129.00"),
				DiscountedPrice: decimal.RequireFromString("99.00"),
				PairPrice:       decimal.RequireFromString("179.00"),
			},
			{
				Category:        product.CategorySunglasses,
				OriginalPrice:   decimal.RequireFromString("149.00"),
				DiscountedPrice: decimal.RequireFromString("119.00"),
			},
		},
	}
	if err := svc.Create(ctx, p); err != nil {
		return err
	}

	slog.Info("created promotion", slog.String("id", p.ID), slog.String("name", p.Name))
	return nil
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool, storeName string) error {
	repo := repository.NewSettingsRepository(pool)
	_, err := repo.Get(ctx)
	switch {
	case err == nil:
		slog.Info("settings already saved, skipping")
		return nil
	case !errors.Is(err, settings.ErrNotFound):
		return errors.Wrap(err, "get settings")
	}

	st := settings.Default()
	if storeName != "" {
		st.StoreName = storeName
	}
	if err := settings.NewService(repo).Update(ctx, &st); err != nil {
		return err
	}

	slog.Info("saved default settings", slog.String("store_name", st.StoreName), slog.String("currency", st.Currency))
	return nil
}

// seedAdmin creates the admin account and prints its API key once. An
// existing account is left alone; issue a new key through the admin API.
func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, pepper string) error {
	keys := auth.NewKeys(repository.NewAPIKeyRepository(pool), []byte(pepper))
	svc := user.NewService(repository.NewUserRepository(pool), keys)

	u := &user.User{Email: email, Name: "Store Admin", Role: user.RoleAdmin}
	if err := svc.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			slog.Info("admin already exists, skipping", slog.String("email", email))
			return nil
		}
		return err
	}

	raw, key, err := svc.IssueKey(ctx, u.ID, "seed admin key", []string{auth.ScopeAdmin})
	if err != nil {
		return errors.Wrap(err, "issue api key")
	}

	slog.Info("created admin",
		slog.String("email", u.Email),
		slog.String("key_id", key.ID),
		slog.String("api_key", raw),
	)
	return nil
}
