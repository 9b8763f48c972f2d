// Package catalogimport loads supplier product feeds into the catalog.
//
// A feed is a gzip-compressed file with one JSON product record per line.
// A SKU that appears in more than one feed is a conflict; it is reported and
// not imported. Every other record is validated and upserted by SKU, one
// transaction per feed.
package catalogimport

import (
	"context"
	"log/slog"
	"math/bits"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/eyewear-store/internal/domain/product"
)

// MaxFeeds is the number of feeds a single run can compare.
const MaxFeeds = 64

// Counts is the outcome of writing one feed.
type Counts struct {
	Inserted int
	Updated  int
}

// Store writes a feed's products in one transaction.
type Store interface {
	Upsert(ctx context.Context, products []product.Product) (Counts, error)
}

// Config tunes the importer.
type Config struct {
	// ExpectedSKUs sizes every bloom filter.
	ExpectedSKUs uint
	// FalsePositiveRate of every bloom filter.
	FalsePositiveRate float64
	// ProgressEvery logs progress after this many lines. Zero disables it.
	ProgressEvery int
}

// DefaultConfig returns settings suited to feeds of up to a million lines.
func DefaultConfig() Config {
	return Config{
		ExpectedSKUs:      1_000_000,
		FalsePositiveRate: 0.001,
		ProgressEvery:     100_000,
	}
}

// LineError is a record that could not be imported.
type LineError struct {
	Line int
	SKU  string
	Err  error
}

func (e LineError) Error() string {
	if e.SKU == "" {
		return errors.Wrapf(e.Err, "line %d", e.Line).Error()
	}
	return errors.Wrapf(e.Err, "line %d (sku %s)", e.Line, e.SKU).Error()
}

// FeedReport summarizes one feed.
type FeedReport struct {
	Path        string
	Records     int
	Conflicting int
	Duplicates  int
	Invalid     []LineError
	Counts
}

// Report summarizes a run.
type Report struct {
	// Conflicts are the SKUs found in two or more feeds, sorted.
	Conflicts []string
	Feeds     []FeedReport
}

// Importer runs the three import passes.
type Importer struct {
	store Store
	cfg   Config
	lg    *slog.Logger
	now   func() time.Time
}

// New creates an Importer. A zero cfg field falls back to DefaultConfig.
func New(store Store, cfg Config, lg *slog.Logger) *Importer {
	def := DefaultConfig()
	if cfg.ExpectedSKUs == 0 {
		cfg.ExpectedSKUs = def.ExpectedSKUs
	}
	if cfg.FalsePositiveRate <= 0 || cfg.FalsePositiveRate >= 1 {
		cfg.FalsePositiveRate = def.FalsePositiveRate
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &Importer{store: store, cfg: cfg, lg: lg, now: time.Now}
}

// Run imports feeds. It stops at the first feed that fails to read or
// write; feeds written before that stay committed.
func (im *Importer) Run(ctx context.Context, feeds []string) (*Report, error) {
	if len(feeds) == 0 {
		return nil, errors.New("no feeds given")
	}
	if len(feeds) > MaxFeeds {
		return nil, errors.Errorf("at most %d feeds per run, got %d", MaxFeeds, len(feeds))
	}

	im.lg.Info("pass 1: building bloom filters", slog.Int("feeds", len(feeds)))
	filters, err := im.buildFilters(ctx, feeds)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	im.lg.Info("pass 2: finding conflicting skus")
	conflicts, err := im.findConflicts(ctx, feeds, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find conflicts")
	}
	im.lg.Info("conflicting skus found", slog.Int("count", len(conflicts)))

	rep := &Report{Conflicts: make([]string, 0, len(conflicts))}
	for sku := range conflicts {
		rep.Conflicts = append(rep.Conflicts, sku)
	}
	slices.Sort(rep.Conflicts)

	im.lg.Info("pass 3: importing feeds")
	for _, path := range feeds {
		fr, err := im.importFeed(ctx, path, conflicts)
		if err != nil {
			return rep, errors.Wrapf(err, "import %s", path)
		}
		rep.Feeds = append(rep.Feeds, *fr)
	}
	return rep, nil
}

// buildFilters creates one bloom filter of SKUs per feed, concurrently.
func (im *Importer) buildFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.cfg.ExpectedSKUs, im.cfg.FalsePositiveRate)
			var count int
			if err := streamFeed(ctx, path, func(n int, line []byte) error {
				sku, err := decodeSKU(line)
				if err != nil || sku == "" {
					return nil
				}
				filter.AddString(sku)
				count++
				im.progress("pass 1 progress", path, count)
				return nil
			}); err != nil {
				return err
			}
			im.lg.Info("pass 1 complete", slog.String("feed", path), slog.Int("skus", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findConflicts re-reads every feed and tests each SKU against the other
// feeds' filters. A SKU is a conflict only when at least two feeds flag it.
func (im *Importer) findConflicts(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	candidates := make([]map[string]uint64, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range feeds {
		g.Go(func() error {
			seen := make(map[string]uint64)
			bit := uint64(1) << uint(i)
			if err := streamFeed(ctx, path, func(n int, line []byte) error {
				sku, err := decodeSKU(line)
				if err != nil || sku == "" {
					return nil
				}
				for j, f := range filters {
					if j != i && f.TestString(sku) {
						seen[sku] |= bit
						break
					}
				}
				return nil
			}); err != nil {
				return err
			}
			im.lg.Info("pass 2 complete", slog.String("feed", path), slog.Int("candidates", len(seen)))
			candidates[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, c := range candidates {
		for sku, mask := range c {
			merged[sku] |= mask
		}
	}
	conflicts := make(map[string]struct{})
	for sku, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			conflicts[sku] = struct{}{}
		}
	}
	return conflicts, nil
}

// importFeed decodes and validates a feed, then writes what survives. A SKU
// repeated within the feed keeps its last record.
func (im *Importer) importFeed(ctx context.Context, path string, conflicts map[string]struct{}) (*FeedReport, error) {
	fr := &FeedReport{Path: path}
	var (
		products []product.Product
		index    = make(map[string]int)
		now      = im.now().UTC()
	)

	if err := streamFeed(ctx, path, func(n int, line []byte) error {
		fr.Records++
		im.progress("pass 3 progress", path, fr.Records)

		p, err := ParseRecord(line)
		if err != nil {
			fr.Invalid = append(fr.Invalid, LineError{Line: n, Err: err})
			return nil
		}
		if _, ok := conflicts[p.SKU]; ok {
			fr.Conflicting++
			return nil
		}
		if err := p.Validate(); err != nil {
			fr.Invalid = append(fr.Invalid, LineError{Line: n, SKU: p.SKU, Err: err})
			return nil
		}
		p.ID = uuid.New().String()
		p.CreatedAt = now
		p.UpdatedAt = now
		p.Price = p.Price.Round(2)

		if i, ok := index[p.SKU]; ok {
			products[i] = p
			fr.Duplicates++
			return nil
		}
		index[p.SKU] = len(products)
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, err
	}

	for _, e := range fr.Invalid {
		im.lg.Warn("skipping invalid record", slog.String("feed", path), slog.String("error", e.Error()))
	}

	if len(products) > 0 {
		c, err := im.store.Upsert(ctx, products)
		if err != nil {
			return nil, errors.Wrap(err, "upsert products")
		}
		fr.Counts = c
	}

	im.lg.Info("feed imported",
		slog.String("feed", path),
		slog.Int("records", fr.Records),
		slog.Int("inserted", fr.Inserted),
		slog.Int("updated", fr.Updated),
		slog.Int("conflicting", fr.Conflicting),
		slog.Int("duplicates", fr.Duplicates),
		slog.Int("invalid", len(fr.Invalid)),
	)
	return fr, nil
}

func (im *Importer) progress(msg, path string, count int) {
	if im.cfg.ProgressEvery > 0 && count%im.cfg.ProgressEvery == 0 {
		im.lg.Info(msg, slog.String("feed", path), slog.Int("lines", count))
	}
}
