// Package catalog loads product catalog dumps into the product store. It
// backs the seed-db and catalog-import tools.
package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/sage-warehouse/internal/domain/product"
)

// Record is one product in a catalog dump.
type Record struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	Seller      string          `json:"seller"`
	Images      []product.Image `json:"images"`
	Discount    decimal.Decimal `json:"discount"`
	FlashSale   bool            `json:"flashSale"`
}

// Product validates r and converts it to a product owned by createdBy.
func (r Record) Product(createdBy string, now time.Time) (*product.Product, error) {
	req := product.CreateRequest{
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
		Category:    r.Category,
		Seller:      r.Seller,
		Images:      r.Images,
		Discount:    r.Discount,
		FlashSale:   r.FlashSale,
		CreatedBy:   createdBy,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return product.NewProduct(req, now), nil
}

// Key is the name products are deduplicated by.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
