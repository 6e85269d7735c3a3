package model

import "time"

// User is a customer wallet. Balance is tracked in minor currency
// units (cents) to avoid floating point drift across debit/refund
// cycles. Mutated only under the "user:balance:{user_id}" KV-lock plus
// a pessimistic row lock; Version backs an optimistic check for any
// path that reads the row outside that lock.
type User struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"-"`
}
