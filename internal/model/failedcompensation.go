package model

import "time"

// FailedCompensationStatus tracks whether an operator has resolved a
// durable FailedCompensation row.
type FailedCompensationStatus string

const (
	FailedCompensationPending  FailedCompensationStatus = "PENDING"
	FailedCompensationResolved FailedCompensationStatus = "RESOLVED"
)

// FailedCompensation is the durable DLQ row for a compensation that
// could not be applied (or, for non-critical errors, was logged as
// best-effort and skipped). Context is an opaque JSON snapshot of the
// saga snapshot at failure time, for operator inspection.
type FailedCompensation struct {
	ID              string                   `json:"id"`
	OrderID         *string                  `json:"order_id,omitempty"`
	UserID          string                   `json:"user_id"`
	StepName        string                   `json:"step_name"`
	StepOrder       int                      `json:"step_order"`
	ErrorMessage    string                   `json:"error_message"`
	StackTrace      string                   `json:"stack_trace"`
	FailedAt        time.Time                `json:"failed_at"`
	RetryCount      int                      `json:"retry_count"`
	Status          FailedCompensationStatus `json:"status"`
	ContextSnapshot []byte                   `json:"-"`
}
