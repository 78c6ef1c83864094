package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/sage-warehouse/internal/catalog"
	"github.com/xenking/sage-warehouse/internal/repository"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
		expected    uint
		createdBy   string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson or *.ndjson.gz catalog dumps")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "files processed concurrently")
	flag.UintVar(&expected, "expected-names", 1_000_000, "expected product names per file, sizes the bloom filters")
	flag.StringVar(&createdBy, "created-by", "catalog-import", "owner recorded on imported products")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := catalog.Options{
		ExpectedNames: expected,
		Workers:       workers,
		CreatedBy:     createdBy,
		Logger:        slog.Default(),
	}
	if err := run(ctx, dataDir, databaseURL, opts); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

// dumpFiles lists the catalog dumps in dir sorted by name, which is also
// their order of precedence.
func dumpFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.ndjson", "*.ndjson.gz"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "glob %s", pattern)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return files, nil
}

func run(ctx context.Context, dataDir, databaseURL string, opts catalog.Options) error {
	files, err := dumpFiles(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		slog.Info("no catalog dumps found", slog.String("dir", dataDir))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	stats, err := catalog.NewImporter(repository.NewProductRepository(pool), opts).Import(ctx, files)
	if err != nil {
		return errors.Wrap(err, "import")
	}

	slog.Info("catalog imported",
		slog.Int("files", len(files)),
		slog.Int64("imported", stats.Imported),
		slog.Int64("duplicates", stats.Duplicates),
		slog.Int64("invalid", stats.Invalid),
	)
	return nil
}
