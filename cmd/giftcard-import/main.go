package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/pos-checkout/internal/domain/giftcard"
	"github.com/xenking/pos-checkout/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxCodeLen    = 64
)

type importConfig struct {
	businessID    string
	bloomCapacity uint
	batchSize     int
}

func main() {
	var (
		databaseURL string
		cfg         importConfig
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.businessID, "business", "", "business that issues the giftcards")
	flag.UintVar(&cfg.bloomCapacity, "expected-codes", 10_000_000, "expected codes per file, sizes the bloom filters")
	flag.IntVar(&cfg.batchSize, "batch-size", 5_000, "giftcards per insert statement")
	flag.Parse()
	files := flag.Args()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	switch {
	case databaseURL == "":
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	case cfg.businessID == "":
		slog.Error("business is required: set --business")
		os.Exit(1)
	case len(files) == 0:
		slog.Error("usage: giftcard-import --business ID file1.gz [file2.gz ...]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, cfg); err != nil {
		slog.Error("giftcard import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("giftcard import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, cfg importConfig) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("finding codes repeated across files", slog.Int("files", len(files)))
	dups, err := findDuplicates(ctx, files, cfg.bloomCapacity)
	if err != nil {
		return errors.Wrap(err, "find duplicates")
	}
	slog.Info("duplicate codes dropped", slog.Int("count", len(dups)))

	slog.Info("connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	st, err := issueAll(ctx, repository.NewGiftcardRepository(pool), files, dups, cfg)
	if err != nil {
		return errors.Wrap(err, "issue giftcards")
	}

	slog.Info("giftcards issued",
		slog.Int64("issued", st.issued),
		slog.Int64("already_existing", st.read-st.issued-st.skipped),
		slog.Int64("skipped", st.skipped),
	)
	return nil
}

// entry is one parsed line of an import file.
type entry struct {
	code    string
	balance decimal.Decimal
}

// parseLine parses "code,balance". Balances must be non-negative with at most
// two decimal places.
func parseLine(line string) (entry, error) {
	code, raw, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return entry{}, errors.New("expected code,balance")
	}
	code = strings.TrimSpace(code)
	if code == "" || len(code) > maxCodeLen {
		return entry{}, errors.Errorf("code length must be within 1..%d", maxCodeLen)
	}

	balance, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return entry{}, errors.Wrap(err, "parse balance")
	}
	if balance.IsNegative() || !balance.Equal(balance.Round(2)) {
		return entry{}, errors.Errorf("invalid balance %s", balance)
	}
	return entry{code: code, balance: balance}, nil
}

// findDuplicates returns codes present in two or more files. Each file gets a
// bloom filter; a second pass collects, per file, the codes that hit another
// file's filter. A code is a duplicate when it is collected from two or more
// files, so filter false positives never leak into the result.
func findDuplicates(ctx context.Context, files []string, capacity uint) (map[string]struct{}, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			n, err := streamEntries(gctx, path, func(e entry) {
				filter.AddString(e.code)
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("bloom filter built", slog.String("file", path), slog.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]map[string]struct{}, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]struct{})
			_, err := streamEntries(gctx, path, func(e entry) {
				for j, f := range filters {
					if j != i && f.TestString(e.code) {
						found[e.code] = struct{}{}
						return
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s for candidates", path)
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seenIn := make(map[string]int)
	for _, found := range candidates {
		for code := range found {
			seenIn[code]++
		}
	}
	dups := make(map[string]struct{})
	for code, n := range seenIn {
		if n >= 2 {
			dups[code] = struct{}{}
		}
	}
	return dups, nil
}

type importStats struct {
	read    int64
	issued  int64
	skipped int64
}

// issueAll issues every code of files that is not in dups, in batches.
// Codes that already exist for the business are left untouched.
func issueAll(
	ctx context.Context,
	issuer giftcard.Issuer,
	files []string,
	dups map[string]struct{},
	cfg importConfig,
) (importStats, error) {
	var (
		st    importStats
		batch = make([]giftcard.Card, 0, cfg.batchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := issuer.Issue(ctx, cfg.businessID, batch)
		if err != nil {
			return err
		}
		st.issued += n
		batch = batch[:0]
		return nil
	}

	for _, path := range files {
		var flushErr error
		_, err := streamEntries(ctx, path, func(e entry) {
			if flushErr != nil {
				return
			}
			st.read++
			if _, dup := dups[e.code]; dup {
				st.skipped++
				return
			}
			batch = append(batch, giftcard.Card{ID: e.code, BusinessID: cfg.businessID, Balance: e.balance})
			if len(batch) >= cfg.batchSize {
				flushErr = flush()
			}
		})
		if err != nil {
			return st, errors.Wrapf(err, "read %s", path)
		}
		if flushErr != nil {
			return st, errors.Wrapf(flushErr, "issue batch from %s", path)
		}
	}
	if err := flush(); err != nil {
		return st, errors.Wrap(err, "issue final batch")
	}
	return st, nil
}

// streamEntries calls fn for every valid line of a gzip file and returns the
// number of valid lines. Malformed lines are logged and skipped.
func streamEntries(ctx context.Context, path string, fn func(e entry)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var count, lineNo uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			slog.Warn("skipping line",
				slog.String("file", path),
				slog.Uint64("line", lineNo),
				slog.String("error", err.Error()),
			)
			continue
		}
		count++
		if count%progressEvery == 0 {
			slog.Info("progress", slog.String("file", path), slog.Uint64("codes", count))
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrapf(err, "scan %s", path)
	}
	return count, nil
}
