package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/sage-warehouse/db"
	"github.com/xenking/sage-warehouse/internal/catalog"
	"github.com/xenking/sage-warehouse/internal/domain/auth"
	"github.com/xenking/sage-warehouse/internal/domain/user"
	"github.com/xenking/sage-warehouse/internal/repository"
)

func main() {
	var (
		databaseURL   string
		productsFile  string
		adminEmail    string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to a products JSON file (default: embedded sample catalog)")
	flag.StringVar(&adminEmail, "admin-email", "admin@sage.local", "email of the seeded administrator")
	flag.StringVar(&adminPassword, "admin-password", "", "administrator password (or SAGE_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("SAGE_SEED_ADMIN_PASSWORD")
	}
	if len(adminPassword) < 6 {
		slog.Error("admin password of at least 6 characters is required: set --admin-password or SAGE_SEED_ADMIN_PASSWORD")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, adminEmail, adminPassword); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, adminEmail, adminPassword string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	users := repository.NewUserRepository(pool)
	admin, err := seedAdmin(ctx, users, adminEmail, adminPassword)
	if err != nil {
		return errors.Wrap(err, "seed admin")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile, admin.ID); err != nil {
		return errors.Wrap(err, "seed products")
	}

	return nil
}

func seedAdmin(ctx context.Context, users *repository.UserRepository, email, password string) (*user.User, error) {
	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		slog.Info("admin already exists", slog.String("id", existing.ID), slog.String("email", email))
		return existing, nil
	case !errors.Is(err, user.ErrNotFound):
		return nil, errors.Wrap(err, "look up admin")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	admin := &user.User{
		ID:           uuid.New().String(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		return nil, errors.Wrap(err, "create admin")
	}

	slog.Info("created admin", slog.String("id", admin.ID), slog.String("email", email))
	return admin, nil
}

func seedProducts(ctx context.Context, products *repository.ProductRepository, productsFile, createdBy string) error {
	data := db.SeedProducts
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))

		var err error
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}

	var records []catalog.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(records)))

	now := time.Now().UTC()
	for i, rec := range records {
		p, err := rec.Product(createdBy, now)
		if err != nil {
			return errors.Wrapf(err, "product %d (%q)", i, rec.Name)
		}
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %q", p.Name)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}
