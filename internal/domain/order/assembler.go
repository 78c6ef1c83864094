package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sage-warehouse/internal/domain/product"
	"github.com/xenking/sage-warehouse/internal/validate"
)

// fetchConcurrency bounds parallel product lookups per request.
const fetchConcurrency = 8

// RequestValidator checks a typed request. A rejected request yields a
// validate.Errors value.
type RequestValidator interface {
	Struct(s any) error
}

// Draft is an order request that passed validation and the stock check.
type Draft struct {
	Items         []LineItem
	Shipping      ShippingInfo
	Payment       PaymentInfo
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	ItemsPrice    decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Quantities returns the total requested quantity per product.
func (d *Draft) Quantities() map[string]int {
	out := make(map[string]int, len(d.Items))
	for _, it := range d.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

// ProductIDs returns the distinct product ids of the draft in line order.
func (d *Draft) ProductIDs() []string {
	seen := make(map[string]struct{}, len(d.Items))
	ids := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

// AssemblerOptions tunes an Assembler.
type AssemblerOptions struct {
	// StrictPricing rejects requests whose unit prices or declared total
	// disagree with the catalog.
	StrictPricing  bool
	TracerProvider trace.TracerProvider
}

// Assembler turns a PlaceOrderRequest into a Draft. It never mutates stock.
type Assembler struct {
	products  product.Repository
	validator RequestValidator
	strict    bool
	tracer    trace.Tracer
}

// NewAssembler creates an Assembler reading products from products.
func NewAssembler(products product.Repository, v RequestValidator, opts AssemblerOptions) *Assembler {
	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Assembler{
		products:  products,
		validator: v,
		strict:    opts.StrictPricing,
		tracer:    tp.Tracer("sage-warehouse/order"),
	}
}

// Assemble validates req, checks every line against current stock and
// materializes the line items. It fails with *ValidationError or
// *InsufficientStockError before anything is written.
func (a *Assembler) Assemble(ctx context.Context, req PlaceOrderRequest) (_ *Draft, rerr error) {
	ctx, span := a.tracer.Start(ctx, "order.Assemble",
		trace.WithAttributes(attribute.Int("order.items", len(req.Items))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := a.validator.Struct(req); err != nil {
		var fields validate.Errors
		if errors.As(err, &fields) {
			return nil, &ValidationError{Fields: fields}
		}
		return nil, errors.Wrap(err, "validate request")
	}

	requested := make(map[string]int, len(req.Items))
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		if _, ok := requested[it.ProductID]; !ok {
			ids = append(ids, it.ProductID)
		}
		requested[it.ProductID] += it.Quantity
		if requested[it.ProductID] > MaxQuantity {
			return nil, invalidField("items", fmt.Sprintf("at most %d units of %s per order", MaxQuantity, it.ProductID))
		}
	}

	products, err := a.resolve(ctx, ids, requested)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		p := products[id]
		if p.Stock <= 0 || p.Stock < requested[id] {
			return nil, &InsufficientStockError{
				ProductID: id,
				Name:      p.Name,
				Requested: requested[id],
				Available: p.Stock,
			}
		}
	}

	draft := &Draft{
		Items:         make([]LineItem, 0, len(req.Items)),
		Shipping:      req.ShippingAddress.info(),
		Payment:       req.Payment.info(),
		TaxPrice:      req.TaxPrice.Round(2),
		ShippingPrice: req.ShippingPrice.Round(2),
		ItemsPrice:    decimal.Zero,
		TotalPrice:    req.TotalPrice.Round(2),
	}
	for i, it := range req.Items {
		p := products[it.ProductID]
		if a.strict && !it.UnitPrice.Equal(p.Price) {
			return nil, invalidField(fmt.Sprintf("items[%d].price", i), "does not match the current price "+p.Price.StringFixed(2))
		}
		draft.Items = append(draft.Items, LineItem{
			ProductID: p.ID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice.Round(2),
			Name:      p.Name,
			Image:     p.PrimaryImage(),
		})
		draft.ItemsPrice = draft.ItemsPrice.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	draft.ItemsPrice = draft.ItemsPrice.Round(2)

	if a.strict {
		expected := draft.ItemsPrice.Add(draft.TaxPrice).Add(draft.ShippingPrice)
		if !expected.Equal(draft.TotalPrice) {
			return nil, invalidField("totalPrice", "must equal items, tax and shipping: "+expected.StringFixed(2))
		}
	}

	return draft, nil
}

// resolve fetches the products concurrently. The first failure cancels the
// remaining lookups and is returned.
func (a *Assembler) resolve(ctx context.Context, ids []string, requested map[string]int) (map[string]*product.Product, error) {
	found := make([]*product.Product, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := a.products.GetByID(gctx, id)
			if errors.Is(err, product.ErrNotFound) {
				return &InsufficientStockError{ProductID: id, Requested: requested[id], Missing: true}
			}
			if err != nil {
				return errors.Wrapf(err, "get product %s", id)
			}
			found[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*product.Product, len(ids))
	for i, id := range ids {
		out[id] = found[i]
	}
	return out, nil
}
