// Package order defines the order types shared by the batching and
// dispatch layers.
package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusExecuted  Status = "executed"
)

// Order is a single order as submitted by the caller. The caller owns
// it until the accumulator accepts it; from then on the subsystem owns
// the status field until it reaches a terminal state.
type Order struct {
	ClientID    string           `json:"client_id"`
	MarketID    string           `json:"market_id"`
	Side        Side             `json:"side"`
	Amount      decimal.Decimal  `json:"amount"`
	MaxPrice    *decimal.Decimal `json:"max_price,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Status      Status           `json:"status"`
}

// Stamp assigns a client id, submission time and pending status to an
// order that is about to enter a dispatch group. An existing client id
// is kept so callers can correlate resubmissions.
func (o *Order) Stamp(now time.Time) {
	if o.ClientID == "" {
		o.ClientID = newClientID()
	}
	o.SubmittedAt = now
	o.Status = StatusPending
}

// newClientID returns a collision-resistant id with a time component.
func newClientID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// BatchStatus tracks an item inside the UI-facing queue. Its lifecycle
// is distinct from the wire order status.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchConfirmed  BatchStatus = "confirmed"
	BatchFailed     BatchStatus = "failed"
)

// BatchItem is an order enriched with a human-readable market
// description while it sits in the queue.
type BatchItem struct {
	Order       Order
	Description string
	Status      BatchStatus
}
