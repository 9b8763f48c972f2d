// Command catalog-import loads gzip-compressed JSON-lines supplier feeds
// into the products table.
//
//	catalog-import -database-url postgres://... feeds/acme.jsonl.gz feeds/lux.jsonl.gz
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/eyewear-store/internal/catalogimport"
)

func main() {
	var (
		databaseURL string
		cfg         = catalogimport.DefaultConfig()
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&cfg.ExpectedSKUs, "expected-skus", cfg.ExpectedSKUs, "expected SKUs per feed, sizes the bloom filters")
	flag.Float64Var(&cfg.FalsePositiveRate, "fpr", cfg.FalsePositiveRate, "bloom filter false positive rate")
	flag.IntVar(&cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "log progress every N lines, 0 disables")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		slog.Error("at least one feed file is required")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, cfg, flag.Args()); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, databaseURL string, cfg catalogimport.Config, feeds []string) error {
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	slog.Info("connecting to database")
	db, err := catalogimport.Open(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer func() { _ = db.Close() }()

	im := catalogimport.New(catalogimport.NewSQLStore(db), cfg, slog.Default())
	rep, err := im.Run(ctx, feeds)
	if err != nil {
		return err
	}

	for _, sku := range rep.Conflicts {
		slog.Warn("sku listed by several feeds, not imported", slog.String("sku", sku))
	}
	var inserted, updated, invalid int
	for _, fr := range rep.Feeds {
		inserted += fr.Inserted
		updated += fr.Updated
		invalid += len(fr.Invalid)
	}
	slog.Info("import summary",
		slog.Int("feeds", len(rep.Feeds)),
		slog.Int("inserted", inserted),
		slog.Int("updated", updated),
		slog.Int("conflicts", len(rep.Conflicts)),
		slog.Int("invalid", invalid),
	)
	return nil
}
