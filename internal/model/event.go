package model

import "time"

// HandlerReceipt marks a change event as applied by a non-idempotent
// handler (counter increments). Receipts are pruned by reconciliation.
type HandlerReceipt struct {
	Handler   string    `json:"handler"`
	EventID   string    `json:"eventId"`
	CreatedAt time.Time `json:"createdAt"`
}
