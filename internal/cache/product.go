// Package cache provides a Redis read-through cache for catalog products.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/sage-warehouse/internal/domain/product"
)

const defaultTTL = 10 * time.Minute

// Options tune the product cache.
type Options struct {
	// TTL is the base lifetime of a cached product.
	TTL time.Duration
	// Jitter is the upper bound of a random extension added to TTL. Zero
	// disables it.
	Jitter time.Duration
	// FailureThreshold is the number of consecutive Redis failures that opens
	// the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing Redis again.
	OpenTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 5
	}
	if o.OpenTimeout <= 0 {
		o.OpenTimeout = 30 * time.Second
	}
}

var (
	_ product.Repository  = (*Products)(nil)
	_ product.Invalidator = (*Products)(nil)
)

// Products is a read-through cache in front of a product.Repository. Single
// product lookups go through Redis; everything else is delegated. Redis
// failures never fail a request: the breaker opens and reads fall through to
// the repository until Redis recovers.
type Products struct {
	next    product.Repository
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker[[]byte]
	opts    Options
}

// NewProducts wraps next with a Redis cache.
func NewProducts(next product.Repository, client redis.UniversalClient, opts Options) *Products {
	opts.setDefaults()
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "product-cache",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})
	return &Products{
		next:    next,
		client:  client,
		breaker: breaker,
		opts:    opts,
	}
}

// GetByID returns the cached product or loads and caches it.
func (c *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	lg := zctx.From(ctx).With(zap.String("product_id", id))

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.client.Get(ctx, key(id)).Bytes()
	})
	switch {
	case err == nil:
		var p product.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		lg.Warn("Dropping undecodable cache entry")
		_ = c.Invalidate(ctx, id)
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Product cache read failed", zap.Error(err))
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.set(ctx, p); err != nil {
		lg.Warn("Product cache write failed", zap.Error(err))
	}
	return p, nil
}

// Invalidate drops the cached copy of id.
func (c *Products) Invalidate(ctx context.Context, id string) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Del(ctx, key(id)).Err()
	})
	if err != nil {
		return fmt.Errorf("invalidating product %q: %w", id, err)
	}
	return nil
}

func (c *Products) List(ctx context.Context, f product.Filter) ([]product.Product, error) {
	return c.next.List(ctx, f)
}

func (c *Products) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	return c.next.GetByIDs(ctx, ids)
}

func (c *Products) Create(ctx context.Context, p *product.Product) error {
	return c.next.Create(ctx, p)
}

func (c *Products) set(ctx context.Context, p *product.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling product: %w", err)
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.client.Set(ctx, key(p.ID), data, c.ttl()).Err()
	})
	return err
}

func (c *Products) ttl() time.Duration {
	if c.opts.Jitter == 0 {
		return c.opts.TTL
	}
	return c.opts.TTL + rand.N(c.opts.Jitter)
}

func key(id string) string {
	return "product:" + id
}
