package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/restaurant-orders/internal/catalog"
	"github.com/xenking/restaurant-orders/internal/domain/menu"
	"github.com/xenking/restaurant-orders/internal/domain/offer"
	"github.com/xenking/restaurant-orders/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

// fileResult holds the records decoded from a single export file.
type fileResult struct {
	items   []menu.Item
	offers  []offer.Offer
	skipped int
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing catalog exports")
	flag.StringVar(&pattern, "pattern", "*.jsonl.gz", "glob of export files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 500, "rows per upsert batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batchSize <= 0 {
		slog.Error("batch size must be positive")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL, batchSize); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "match export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files matching %q in %s", pattern, dataDir)
	}
	sort.Strings(files)

	slog.Info("decoding exports", slog.Int("files", len(files)))

	results, err := decodeFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "decode exports")
	}
	items, offers := merge(results)

	slog.Info("decoded catalog",
		slog.Int("menu_items", len(items)),
		slog.Int("offers", len(offers)),
	)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	menuRepo := postgres.NewMenuRepository(pool)
	existing, err := menuRepo.ListIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "list existing menu items")
	}

	known := buildMenuFilter(items, existing)
	offers = filterOffers(offers, known)

	if err := writeBatches(ctx, items, batchSize, menuRepo.Upsert); err != nil {
		return errors.Wrap(err, "write menu items")
	}
	if err := writeBatches(ctx, offers, batchSize, postgres.NewOfferRepository(pool).Upsert); err != nil {
		return errors.Wrap(err, "write offers")
	}

	return nil
}

// decodeFiles decodes every file concurrently.
func decodeFiles(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, f := range files {
		g.Go(decodeFile(ctx, i, f, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func decodeFile(ctx context.Context, idx int, path string, results []fileResult) func() error {
	return func() error {
		var (
			res   fileResult
			lines uint64
		)

		if err := streamGzFile(ctx, path, func(line []byte) {
			if len(line) == 0 {
				return
			}
			lines++
			if lines%progressEvery == 0 {
				slog.Info("decode progress",
					slog.String("file", path),
					slog.Uint64("lines", lines),
				)
			}

			rec, err := catalog.DecodeRecord(line)
			if err != nil {
				res.skipped++
				slog.Warn("skipping record",
					slog.String("file", path),
					slog.Uint64("line", lines),
					slog.String("error", err.Error()),
				)
				return
			}
			switch {
			case rec.Item != nil:
				res.items = append(res.items, *rec.Item)
			case rec.Offer != nil:
				res.offers = append(res.offers, *rec.Offer)
			}
		}); err != nil {
			return errors.Wrapf(err, "decode file %d", idx+1)
		}

		slog.Info("decode complete",
			slog.String("file", path),
			slog.Int("menu_items", len(res.items)),
			slog.Int("offers", len(res.offers)),
			slog.Int("skipped", res.skipped),
		)

		results[idx] = res
		return nil
	}
}

// merge flattens per-file results. When an id repeats, the record from the
// later file wins.
func merge(results []fileResult) ([]menu.Item, []offer.Offer) {
	itemPos := make(map[string]int)
	var items []menu.Item
	offerPos := make(map[string]int)
	var offers []offer.Offer

	for _, r := range results {
		for _, it := range r.items {
			if i, ok := itemPos[it.ID]; ok {
				items[i] = it
				continue
			}
			itemPos[it.ID] = len(items)
			items = append(items, it)
		}
		for _, o := range r.offers {
			if i, ok := offerPos[o.ID]; ok {
				offers[i] = o
				continue
			}
			offerPos[o.ID] = len(offers)
			offers = append(offers, o)
		}
	}

	return items, offers
}

// buildMenuFilter returns a bloom filter over every menu item id that will
// exist once the ingest completes.
func buildMenuFilter(items []menu.Item, existing []string) *bloom.BloomFilter {
	filter := bloom.NewWithEstimates(uint(len(items)+len(existing)+1), bloomFPR)
	for _, it := range items {
		filter.AddString(it.ID)
	}
	for _, id := range existing {
		filter.AddString(id)
	}
	return filter
}

// filterOffers drops offer item ids that are not in known and offers left
// without any item.
func filterOffers(offers []offer.Offer, known *bloom.BloomFilter) []offer.Offer {
	kept := offers[:0]
	for _, o := range offers {
		ids := make([]string, 0, len(o.MenuItemIDs))
		for _, id := range o.MenuItemIDs {
			if known.TestString(id) {
				ids = append(ids, id)
				continue
			}
			slog.Warn("dropping unknown menu item from offer",
				slog.String("offer", o.ID),
				slog.String("menu_item", id),
			)
		}
		if len(ids) == 0 {
			slog.Warn("dropping offer without known menu items", slog.String("offer", o.ID))
			continue
		}
		o.MenuItemIDs = ids
		kept = append(kept, o)
	}
	return kept
}

// streamGzFile opens a gzip-compressed file and calls fn for each line. The
// line slice is only valid until fn returns.
func streamGzFile(ctx context.Context, path string, fn func(line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeBatches calls write for consecutive chunks of at most size rows.
func writeBatches[T any](ctx context.Context, rows []T, size int, write func(context.Context, []T) error) error {
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		if err := write(ctx, rows[start:end]); err != nil {
			return errors.Wrapf(err, "write rows %d..%d", start, end)
		}
		slog.Info("write progress", slog.Int("written", end), slog.Int("total", len(rows)))
	}
	return nil
}
