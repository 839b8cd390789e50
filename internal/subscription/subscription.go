// Package subscription owns the push-channel connections used for
// live market and order updates.
package subscription

import (
	"encoding/json"

	"github.com/oddstream/oddstream-go/internal/odds"
)

// Control frame types on the push channel.
const (
	frameConnectionInit = "connection_init"
	frameConnectionAck  = "connection_ack"
	frameSubscribe      = "subscribe"
	frameUnsubscribe    = "unsubscribe"
	frameData           = "data"
	frameError          = "error"
	frameComplete       = "complete"
)

// controlFrame is an outbound subscribe/unsubscribe message.
type controlFrame struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Query     string         `json:"query,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// inboundFrame is any message arriving on the channel.
type inboundFrame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarketUpdate is the payload delivered to market subscribers.
type MarketUpdate struct {
	MarketID  string    `json:"marketId"`
	YesOdds   odds.Odds `json:"yesOdds"`
	NoOdds    odds.Odds `json:"noOdds"`
	Volume    odds.Odds `json:"volume"`
	Status    string    `json:"status"`
	Timestamp int64     `json:"timestamp"`
}

// OrderUpdate is the payload delivered to order subscribers.
type OrderUpdate struct {
	OrderID   string `json:"orderId"`
	MarketID  string `json:"marketId"`
	ChainID   string `json:"chainId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

const (
	marketUpdatesSubscription = `
	subscription OnMarketUpdates($marketIds: [String!]) {
		marketUpdates(marketIds: $marketIds) {
			marketId
			yesOdds
			noOdds
			volume
			status
			timestamp
		}
	}`

	orderUpdatesSubscription = `
	subscription OnOrderUpdates($chainId: String!) {
		orderUpdates(chainId: $chainId) {
			orderId
			marketId
			chainId
			status
			timestamp
		}
	}`
)
