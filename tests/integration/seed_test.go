//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/sage-warehouse/db"
	"github.com/xenking/sage-warehouse/internal/catalog"
	"github.com/xenking/sage-warehouse/internal/domain/auth"
	"github.com/xenking/sage-warehouse/internal/domain/user"
	"github.com/xenking/sage-warehouse/internal/repository"
)

func seedAdmin(ctx context.Context, users *repository.UserRepository) (string, error) {
	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	admin := &user.User{
		ID:           uuid.New().String(),
		Name:         "Administrator",
		Email:        adminEmail,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", errors.Wrap(err, "create admin")
	}
	return admin.ID, nil
}

func seedProducts(ctx context.Context, products *repository.ProductRepository, createdBy string) error {
	var records []catalog.Record
	if err := json.Unmarshal(db.SeedProducts, &records); err != nil {
		return errors.Wrap(err, "parse products")
	}
	now := time.Now().UTC()
	for _, rec := range records {
		p, err := rec.Product(createdBy, now)
		if err != nil {
			return errors.Wrapf(err, "product %q", rec.Name)
		}
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert %q", p.Name)
		}
	}
	return nil
}
