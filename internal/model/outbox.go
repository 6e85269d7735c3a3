package model

import "time"

// OutboxStatus is the lifecycle state of a transactional outbox row.
// FAILED is a terminal, non-retryable publish error; ABANDONED is
// reached only after the retry budget (outbox.max_retries) is
// exhausted. The two are distinct so an operator can tell "the event
// log rejected this message outright" from "we gave up retrying".
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxPublishing OutboxStatus = "PUBLISHING"
	OutboxPublished  OutboxStatus = "PUBLISHED"
	OutboxFailed     OutboxStatus = "FAILED"
	OutboxAbandoned  OutboxStatus = "ABANDONED"
)

// OutboxMessageType identifies the event shape carried in Payload.
type OutboxMessageType string

const (
	MessageOrderCompleted OutboxMessageType = "ORDER_COMPLETED"
	MessageOrderCancelled OutboxMessageType = "ORDER_CANCELLED"
	MessageCouponIssued   OutboxMessageType = "COUPON_ISSUED"
)

// OutboxMessage is inserted PENDING inside the saga's final DB
// transaction and later drained by the dispatcher.
type OutboxMessage struct {
	MessageID    string            `json:"message_id"`
	OrderID      string            `json:"order_id"`
	UserID       string            `json:"user_id"`
	MessageType  OutboxMessageType `json:"message_type"`
	Payload      []byte            `json:"-"`
	Status       OutboxStatus      `json:"status"`
	RetryCount   int               `json:"retry_count"`
	LastAttempt  *time.Time        `json:"last_attempt,omitempty"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// OrderCompletedPayload is the wire shape of an ORDER_COMPLETED event.
type OrderCompletedPayload struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	FinalAmount int64  `json:"final_amount"`
	OccurredAt  int64  `json:"occurred_at"`
}

// OrderCancelledPayload is the wire shape of an ORDER_CANCELLED event.
type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	CancelledAt int64  `json:"cancelled_at"`
}
