package model

import "time"

// CouponRequest is the payload carried by a partitioned-log entry,
// keyed by CouponID so all contention for one coupon serializes into
// one partition.
type CouponRequest struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	CouponID    string    `json:"coupon_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	RetryCount  int       `json:"retry_count"`
}
