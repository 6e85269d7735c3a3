package model

import "time"

// OrderStatus is the lifecycle state of an order. Once COMPLETED, the
// only legal next transition is CANCELLED.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
)

// Order is the saga's terminal artifact. Invariant:
// FinalAmount = max(0, Subtotal - CouponDiscount).
type Order struct {
	OrderID        string      `json:"order_id"`
	UserID         string      `json:"user_id"`
	Status         OrderStatus `json:"status"`
	CouponID       *string     `json:"coupon_id,omitempty"`
	Subtotal       int64       `json:"subtotal"`
	CouponDiscount int64       `json:"coupon_discount"`
	FinalAmount    int64       `json:"final_amount"`
	CreatedAt      time.Time   `json:"created_at"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
}

// OrderItem is a line item snapshot: product/option names and unit
// price are captured at order time so later catalog edits never alter
// a historical order.
type OrderItem struct {
	OrderItemID string `json:"order_item_id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	OptionID    string `json:"option_id"`
	ProductName string `json:"product_name"`
	OptionName  string `json:"option_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

// CreateOrderRequest is the saga orchestrator's entry payload.
type CreateOrderRequest struct {
	UserID   string           `json:"user_id" validate:"required,notblank"`
	Items    []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	CouponID *string          `json:"coupon_id,omitempty"`
}

// CancelReport summarizes the effect of a successful cancellation.
type CancelReport struct {
	OrderID          string `json:"order_id"`
	RefundedAmount   int64  `json:"refunded_amount"`
	RestockedItems   int    `json:"restocked_items"`
	CouponReinstated bool   `json:"coupon_reinstated"`
}
