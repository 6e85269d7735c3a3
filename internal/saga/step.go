// Package saga implements the order saga orchestrator of §4.3/§4.4: a
// fixed-order chain of steps, each running in its own DB transaction,
// with LIFO compensation on failure. Grounded on the trail-based
// orchestrator shape in
// other_examples/ba403ef1_eCo13rus-order_system...saga-orchestrator.go
// and the generic step/compensate interface in
// other_examples/b5ddd884_kzh125-go-saga__saga.go.go, adapted to this
// domain's four concrete steps.
package saga

import (
	"context"
	"time"

	"github.com/fairyhunter13/order-saga-coupon-system/internal/model"
)

// Snapshot is the saga's working state, threaded through every step's
// Execute and Compensate. It is never persisted as a whole — each step
// durably records only what it needs (order rows, outbox rows). Once
// CreateOrderStep has committed, compensation rebuilds its facts from
// the database; before that, it works from the snapshot's own items
// and amounts.
type Snapshot struct {
	UserID         string
	Items          []model.OrderItemInput
	CouponID       *string
	CouponDiscount int64
	Subtotal       int64
	FinalAmount    int64

	// OrderID is populated by CreateOrderStep once it commits, and
	// read back by compensation of earlier steps re-deriving facts
	// from durable state.
	OrderID string

	// ExecutionTrail preserves the order in which Execute returned
	// successfully; a step that failed is never appended, so its
	// Compensate is never invoked.
	ExecutionTrail []string
}

// Step is a single saga participant: a stable Name (used in the
// execution trail and DLQ entries), a total ordering Order, and
// Execute/Compensate routines. Each of Execute and Compensate runs in
// an independent DB transaction — never joined to any outer one.
type Step interface {
	Name() string
	Order() int
	Execute(ctx context.Context, snap *Snapshot) error
	Compensate(ctx context.Context, snap *Snapshot) error
}

// clockNow is overridable in tests; production code always calls
// time.Now directly through this indirection point.
var clockNow = time.Now
