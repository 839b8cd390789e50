package rpc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddstream/oddstream-go/internal/odds"
	"github.com/oddstream/oddstream-go/internal/order"
)

// MarketInfo is a market as returned by the markets query.
type MarketInfo struct {
	ID             string    `json:"id"`
	ChainID        string    `json:"chainId"`
	Description    string    `json:"description"`
	YesOdds        odds.Odds `json:"yesOdds"`
	NoOdds         odds.Odds `json:"noOdds"`
	Volume         odds.Odds `json:"volume"`
	Liquidity      odds.Odds `json:"liquidity"`
	Status         string    `json:"status"`
	OracleType     string    `json:"oracleType"`
	ResolutionTime int64     `json:"resolutionTime"`
}

// MarketFilters narrows the markets query.
type MarketFilters struct {
	Status    string           `json:"status,omitempty"`
	MinVolume *decimal.Decimal `json:"minVolume,omitempty"`
	Limit     int              `json:"limit,omitempty"`
}

// CreateMarketParams are the arguments of the createMarket mutation.
type CreateMarketParams struct {
	MarketID       string `json:"marketId"`
	Description    string `json:"description"`
	OracleType     string `json:"oracleType"`
	ResolutionTime int64  `json:"resolutionTime"`
}

// BatchMessage is the cross-chain payload carrying one destination's
// share of a batch.
type BatchMessage struct {
	Type        string        `json:"type"`
	UserChainID string        `json:"user_chain_id"`
	Orders      []order.Order `json:"orders"`
	Nonce       uint64        `json:"nonce"`
}

// BatchMessageType is the only message type this client dispatches.
const BatchMessageType = "BatchedOrders"

// DispatchRequest is one message for the cross-chain dispatch
// endpoint.
type DispatchRequest struct {
	OriginChainID      string       `json:"origin_chain_id"`
	DestinationChainID string       `json:"destination_chain_id"`
	Message            BatchMessage `json:"message"`
	Timestamp          time.Time    `json:"timestamp"`
}

type dispatchResponse struct {
	TransactionID string `json:"transaction_id"`
}

type nonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

type claimChainResponse struct {
	ChainID string `json:"chain_id"`
}

// GraphQL documents for the query/mutate RPC.
const (
	marketsQuery = `
	query GetMarkets($filters: MarketFilters) {
		markets(filters: $filters) {
			id
			chainId
			description
			yesOdds
			noOdds
			volume
			liquidity
			status
			oracleType
			resolutionTime
		}
	}`

	balanceQuery = `
	query GetBalance($chainId: String!) {
		balance(chainId: $chainId)
	}`

	createMarketMutation = `
	mutation CreateMarket($marketId: String!, $description: String!, $oracleType: String!, $resolutionTime: Int!) {
		createMarket(marketId: $marketId, description: $description, oracleType: $oracleType, resolutionTime: $resolutionTime)
	}`

	registerUserChainMutation = `
	mutation RegisterUserChain($userChainId: String!) {
		registerUserChain(userChainId: $userChainId)
	}`
)
