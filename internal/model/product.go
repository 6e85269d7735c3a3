package model

// ProductOption is a purchasable SKU variant. Invariant: Stock >= 0.
type ProductOption struct {
	OptionID  string `json:"option_id"`
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Version   int64  `json:"-"`
}

// OrderItemInput is the caller-supplied line item of an order request,
// before snapshot pricing is resolved.
type OrderItemInput struct {
	ProductID string `json:"product_id" validate:"required"`
	OptionID  string `json:"option_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
	UnitPrice int64  `json:"unit_price" validate:"required,gte=0"`
}
