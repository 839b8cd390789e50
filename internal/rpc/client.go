// Package rpc is the client's boundary to the OddsStream service: a
// query/mutate GraphQL endpoint plus the cross-chain dispatch, nonce
// and faucet endpoints.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddstream/oddstream-go/pkg/httpclient"
)

const requestTimeout = 30 * time.Second

// ErrRPCFailure marks transport-level failures (connection, timeout,
// non-2xx status) as opposed to domain errors returned in a response
// body. Callers branch on it with errors.Is.
var ErrRPCFailure = errors.New("rpc failure")

// TokenSource supplies the authorization token stamped on
// authenticated requests. It returns an error once the session is
// gone, so requests after disconnect fail fast instead of reusing a
// stale token.
type TokenSource interface {
	AuthToken() (string, error)
}

type Client struct {
	httpClient *http.Client
	baseURL    string

	mu     sync.RWMutex
	tokens TokenSource
}

func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// SetTokenSource wires the session in after construction. Until set,
// authenticated calls fail.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) authHeader() (http.Header, error) {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()

	if ts == nil {
		return nil, fmt.Errorf("no token source configured")
	}
	token, err := ts.AuthToken()
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	return header, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Query runs a GraphQL document and returns the raw data payload. A
// non-empty error list is a hard failure.
func (c *Client) Query(ctx context.Context, document string, variables map[string]any) (json.RawMessage, error) {
	return c.run(ctx, document, variables, nil)
}

// Mutate runs an authenticated GraphQL document.
func (c *Client) Mutate(ctx context.Context, document string, variables map[string]any) (json.RawMessage, error) {
	header, err := c.authHeader()
	if err != nil {
		return nil, err
	}
	return c.run(ctx, document, variables, header)
}

func (c *Client) run(ctx context.Context, document string, variables map[string]any, header http.Header) (json.RawMessage, error) {
	resp, err := httpclient.PostResource[graphQLResponse](
		ctx, c.httpClient, c.baseURL, "/graphql",
		graphQLRequest{Query: document, Variables: variables},
		[]int{200}, header,
	)
	if err != nil {
		return nil, fmt.Errorf("couldn't run query: %w", errors.Join(ErrRPCFailure, err))
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("query returned errors: %s", strings.Join(msgs, "; "))
	}
	return resp.Data, nil
}

// Markets queries active markets with optional filters.
func (c *Client) Markets(ctx context.Context, filters MarketFilters) ([]*MarketInfo, error) {
	data, err := c.Query(ctx, marketsQuery, map[string]any{"filters": filters})
	if err != nil {
		return nil, fmt.Errorf("couldn't get markets: %w", err)
	}

	var payload struct {
		Markets []*MarketInfo `json:"markets"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("couldn't decode markets: %w", err)
	}
	return payload.Markets, nil
}

// Balance returns the token balance held on a chain.
func (c *Client) Balance(ctx context.Context, chainID string) (decimal.Decimal, error) {
	data, err := c.Query(ctx, balanceQuery, map[string]any{"chainId": chainID})
	if err != nil {
		return decimal.Zero, fmt.Errorf("couldn't get balance: %w", err)
	}

	var payload struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("couldn't decode balance: %w", err)
	}
	return payload.Balance, nil
}

// CreateMarket registers a new market with the registry, which spawns
// a dedicated chain for it.
func (c *Client) CreateMarket(ctx context.Context, params CreateMarketParams) error {
	vars := map[string]any{
		"marketId":       params.MarketID,
		"description":    params.Description,
		"oracleType":     params.OracleType,
		"resolutionTime": params.ResolutionTime,
	}
	if _, err := c.Mutate(ctx, createMarketMutation, vars); err != nil {
		return fmt.Errorf("couldn't create market: %w", err)
	}
	return nil
}

// RegisterUserChain announces the user's chain to the registry.
func (c *Client) RegisterUserChain(ctx context.Context, userChainID string) error {
	if _, err := c.Mutate(ctx, registerUserChainMutation, map[string]any{"userChainId": userChainID}); err != nil {
		return fmt.Errorf("couldn't register user chain: %w", err)
	}
	return nil
}

// NextNonce fetches the current sequence counter for an origin chain.
// The service is the sole source of truth; the client never caches.
func (c *Client) NextNonce(ctx context.Context, originChainID string) (uint64, error) {
	header, err := c.authHeader()
	if err != nil {
		return 0, err
	}

	resp, err := httpclient.GetResource[nonceResponse](
		ctx, c.httpClient, c.baseURL, "/v1/chains/"+originChainID+"/nonce",
		[]int{200}, header,
	)
	if err != nil {
		return 0, fmt.Errorf("couldn't get nonce for chain %s: %w", originChainID, errors.Join(ErrRPCFailure, err))
	}
	return resp.Nonce, nil
}

// Dispatch sends one cross-chain message and returns its transaction
// id.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	header, err := c.authHeader()
	if err != nil {
		return "", err
	}

	resp, err := httpclient.PostResource[dispatchResponse](
		ctx, c.httpClient, c.baseURL, "/v1/dispatch", req,
		[]int{200, 202}, header,
	)
	if err != nil {
		return "", fmt.Errorf("couldn't dispatch to chain %s: %w", req.DestinationChainID, errors.Join(ErrRPCFailure, err))
	}
	return resp.TransactionID, nil
}

// ClaimChain asks the faucet for a fresh chain owned by the given
// public key. Unauthenticated: it is how a wallet bootstraps.
func (c *Client) ClaimChain(ctx context.Context, publicKey string) (string, error) {
	resp, err := httpclient.PostResource[claimChainResponse](
		ctx, c.httpClient, c.baseURL, "/v1/faucet/claim",
		map[string]string{"public_key": publicKey},
		[]int{200, 201}, nil,
	)
	if err != nil {
		return "", fmt.Errorf("couldn't claim chain: %w", errors.Join(ErrRPCFailure, err))
	}
	return resp.ChainID, nil
}
