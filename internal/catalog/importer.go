package catalog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/bits"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sage-warehouse/internal/domain/product"
)

const (
	maxFiles      = bits.UintSize
	maxLineBytes  = 1 << 20
	progressEvery = 100_000
)

// Upserter stores a product, replacing any product with the same name.
type Upserter interface {
	Upsert(ctx context.Context, p *product.Product) error
}

// Options tunes an Importer.
type Options struct {
	// ExpectedNames sizes the per-file bloom filters. Defaults to 1M.
	ExpectedNames uint
	// FalsePositiveRate of the bloom filters. Defaults to 0.001.
	FalsePositiveRate float64
	// Workers bounds the number of files processed at once. Defaults to 4.
	Workers int
	// CreatedBy is recorded as the owner of imported products.
	CreatedBy string
	Logger    *slog.Logger
}

func (o *Options) setDefaults() {
	if o.ExpectedNames == 0 {
		o.ExpectedNames = 1_000_000
	}
	if o.FalsePositiveRate <= 0 {
		o.FalsePositiveRate = 0.001
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Stats summarizes an import.
type Stats struct {
	Read       int64
	Imported   int64
	Duplicates int64
	Invalid    int64
}

// Importer loads NDJSON product dumps, gzip-compressed when the file name
// ends in .gz. A product name belongs to the first file that lists it;
// later files' records with the same name are dropped. Within one file the
// last record for a name wins.
//
// Cross-file duplicates are found without holding every name in memory: a
// bloom filter per file flags names that may occur in an earlier file, and
// only those suspects are confirmed exactly.
type Importer struct {
	repo Upserter
	opts Options
	now  func() time.Time
}

// NewImporter creates an Importer writing to repo.
func NewImporter(repo Upserter, opts Options) *Importer {
	opts.setDefaults()
	return &Importer{repo: repo, opts: opts, now: time.Now}
}

// Import loads paths in order of precedence.
func (im *Importer) Import(ctx context.Context, paths []string) (Stats, error) {
	if len(paths) == 0 {
		return Stats{}, nil
	}
	if len(paths) > maxFiles {
		return Stats{}, errors.Errorf("at most %d files per import, got %d", maxFiles, len(paths))
	}

	lg := im.opts.Logger
	lg.Info("pass 1: building bloom filters", slog.Int("files", len(paths)))
	filters, err := im.buildFilters(ctx, paths)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("pass 2: collecting duplicate suspects")
	suspects, err := im.collectSuspects(ctx, paths, filters)
	if err != nil {
		return Stats{}, errors.Wrap(err, "collect suspects")
	}

	owners := map[string]int{}
	if len(suspects) > 0 {
		lg.Info("pass 3: confirming suspects", slog.Int("suspects", len(suspects)))
		if owners, err = im.resolveOwners(ctx, paths, suspects); err != nil {
			return Stats{}, errors.Wrap(err, "resolve owners")
		}
	}

	lg.Info("pass 4: importing products")
	stats, err := im.load(ctx, paths, owners)
	if err != nil {
		return stats, errors.Wrap(err, "load products")
	}
	return stats, nil
}

// forEachFile runs fn for every file with at most Workers in flight.
func (im *Importer) forEachFile(ctx context.Context, paths []string, fn func(ctx context.Context, idx int, path string) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := fn(ctx, i, path); err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			return nil
		})
	}
	return g.Wait()
}

func (im *Importer) buildFilters(ctx context.Context, paths []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(paths))
	err := im.forEachFile(ctx, paths, func(ctx context.Context, idx int, path string) error {
		f := bloom.NewWithEstimates(im.opts.ExpectedNames, im.opts.FalsePositiveRate)
		err := scanFile(ctx, path, func(_ int, rec Record, err error) error {
			if err == nil {
				f.AddString(Key(rec.Name))
			}
			return nil
		})
		filters[idx] = f
		return err
	})
	return filters, err
}

// collectSuspects returns the names that may appear in more than one file.
func (im *Importer) collectSuspects(ctx context.Context, paths []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	var (
		mu       sync.Mutex
		suspects = make(map[string]struct{})
	)
	err := im.forEachFile(ctx, paths, func(ctx context.Context, idx int, path string) error {
		if idx == 0 {
			return nil
		}
		local := make(map[string]struct{})
		err := scanFile(ctx, path, func(_ int, rec Record, err error) error {
			if err != nil {
				return nil
			}
			key := Key(rec.Name)
			for _, f := range filters[:idx] {
				if f.TestString(key) {
					local[key] = struct{}{}
					break
				}
			}
			return nil
		})
		mu.Lock()
		for k := range local {
			suspects[k] = struct{}{}
		}
		mu.Unlock()
		return err
	})
	return suspects, err
}

// resolveOwners maps every confirmed duplicate name to the index of the first
// file listing it.
func (im *Importer) resolveOwners(ctx context.Context, paths []string, suspects map[string]struct{}) (map[string]int, error) {
	var (
		mu       sync.Mutex
		presence = make(map[string]uint)
	)
	err := im.forEachFile(ctx, paths, func(ctx context.Context, idx int, path string) error {
		seen := make(map[string]struct{})
		err := scanFile(ctx, path, func(_ int, rec Record, err error) error {
			if err != nil {
				return nil
			}
			if key := Key(rec.Name); hasKey(suspects, key) {
				seen[key] = struct{}{}
			}
			return nil
		})
		mu.Lock()
		for k := range seen {
			presence[k] |= 1 << uint(idx)
		}
		mu.Unlock()
		return err
	})
	if err != nil {
		return nil, err
	}

	owners := make(map[string]int)
	for k, mask := range presence {
		if bits.OnesCount(mask) > 1 {
			owners[k] = bits.TrailingZeros(mask)
		}
	}
	return owners, nil
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

func (im *Importer) load(ctx context.Context, paths []string, owners map[string]int) (Stats, error) {
	var read, imported, dups, invalid atomic.Int64
	lg := im.opts.Logger

	err := im.forEachFile(ctx, paths, func(ctx context.Context, idx int, path string) error {
		return scanFile(ctx, path, func(line int, rec Record, err error) error {
			if n := read.Add(1); n%progressEvery == 0 {
				lg.Info("import progress", slog.Int64("records", n))
			}
			if err != nil {
				invalid.Add(1)
				lg.Warn("skipping malformed record", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
				return nil
			}
			if owner, ok := owners[Key(rec.Name)]; ok && owner != idx {
				dups.Add(1)
				return nil
			}
			p, err := rec.Product(im.opts.CreatedBy, im.now())
			if err != nil {
				invalid.Add(1)
				lg.Warn("skipping invalid record", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
				return nil
			}
			if err := im.repo.Upsert(ctx, p); err != nil {
				return errors.Wrapf(err, "line %d", line)
			}
			imported.Add(1)
			return nil
		})
	})

	stats := Stats{
		Read:       read.Load(),
		Imported:   imported.Load(),
		Duplicates: dups.Load(),
		Invalid:    invalid.Load(),
	}
	lg.Info("import finished",
		slog.Int64("read", stats.Read),
		slog.Int64("imported", stats.Imported),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("invalid", stats.Invalid),
	)
	return stats, err
}

// scanFile decodes one Record per non-blank line and calls fn with its
// 1-based line number. Decode failures are passed to fn rather than aborting
// the scan; an error returned by fn does.
func scanFile(ctx context.Context, path string, fn func(line int, rec Record, err error) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var rec Record
		decodeErr := json.Unmarshal(raw, &rec)
		if err := fn(line, rec, decodeErr); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}
