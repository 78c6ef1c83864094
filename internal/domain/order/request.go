package order

import "github.com/shopspring/decimal"

// MaxQuantity caps the units of one product in a single order, across all
// lines naming it. The validate tag on ItemRequest.Quantity repeats it.
const MaxQuantity = 10000

// PlaceOrderRequest is the checkout payload submitted by a customer.
type PlaceOrderRequest struct {
	Items           []ItemRequest   `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingRequest `json:"shippingAddress"`
	Payment         PaymentRequest  `json:"payment"`
	TaxPrice        decimal.Decimal `json:"taxPrice" validate:"gte=0"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice" validate:"gte=0"`
	TotalPrice      decimal.Decimal `json:"totalPrice" validate:"gte=0"`
}

// ItemRequest is a requested product and quantity with the unit price the
// client displayed.
type ItemRequest struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"min=1,max=10000"`
	UnitPrice decimal.Decimal `json:"price" validate:"gte=0"`
}

// ShippingRequest is the delivery address supplied at checkout.
type ShippingRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Street    string `json:"street" validate:"required,max=200"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"required,max=100"`
	ZipCode   string `json:"zipCode" validate:"required,max=20"`
	Country   string `json:"country" validate:"required,max=100"`
}

// PaymentRequest carries the payment provider response.
type PaymentRequest struct {
	Reference   string `json:"reference" validate:"required"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Transaction string `json:"transaction"`
}

func (r ShippingRequest) info() ShippingInfo {
	return ShippingInfo(r)
}

func (r PaymentRequest) info() PaymentInfo {
	return PaymentInfo{
		Status:      r.Status,
		Reference:   r.Reference,
		Message:     r.Message,
		Transaction: r.Transaction,
	}
}
