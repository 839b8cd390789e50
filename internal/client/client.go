// Package client assembles the subsystem into one entry point: wallet
// session, market queries with caching, chain routing, debounced order
// batching and live subscriptions behind a single Client.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddstream/oddstream-go/internal/batch"
	"github.com/oddstream/oddstream-go/internal/cache"
	"github.com/oddstream/oddstream-go/internal/chain"
	"github.com/oddstream/oddstream-go/internal/dispatch"
	"github.com/oddstream/oddstream-go/internal/nonce"
	"github.com/oddstream/oddstream-go/internal/order"
	"github.com/oddstream/oddstream-go/internal/rpc"
	"github.com/oddstream/oddstream-go/internal/session"
	"github.com/oddstream/oddstream-go/internal/subscription"
)

const (
	// DefaultMarketsTTL keeps the market list fresh enough for order
	// entry while absorbing repeated queries from UI refreshes.
	DefaultMarketsTTL = 30 * time.Second
)

// service is the slice of the RPC client the facade consumes
// directly. Dispatch, nonce and registration traffic goes through the
// dispatcher and session, which carry their own interfaces.
type service interface {
	Markets(ctx context.Context, filters rpc.MarketFilters) ([]*rpc.MarketInfo, error)
	CreateMarket(ctx context.Context, params rpc.CreateMarketParams) error
}

// submitter is the dispatcher slice the batch adapter needs.
type submitter interface {
	Submit(ctx context.Context, orders []order.Order, originChainID string) (*dispatch.Result, error)
}

type Options struct {
	ServiceURL      string
	SubscriptionURL string
	BatchWindow     time.Duration
	MarketsTTL      time.Duration
	FailFast        bool

	// Clock overrides time for the batch accumulator. Nil means wall
	// clock.
	Clock batch.Clock
}

type Client struct {
	api        service
	session    *session.Session
	router     *chain.Router
	markets    *cache.Cache[string, []*rpc.MarketInfo]
	marketsTTL time.Duration
	queue      *batch.Accumulator
	subs       *subscription.Manager
	dispatcher submitter
	faucet     session.ChainClaimer
	logger     *slog.Logger
}

// New wires the full stack against a live service. The RPC client is
// both the query backend and, through the session's token source, the
// authenticated dispatch endpoint.
func New(opts Options, l *slog.Logger) *Client {
	rpcClient := rpc.New(opts.ServiceURL)
	sess := session.New(rpcClient, l)
	rpcClient.SetTokenSource(sess)

	router := chain.NewRouter(l)
	d := dispatch.New(sess, router, nonce.NewSequencer(rpcClient), rpcClient,
		dispatch.Config{FailFast: opts.FailFast}, l)

	c := assemble(rpcClient, sess, router, d, subscription.NewManager(opts.SubscriptionURL, l), opts, l)
	c.faucet = rpcClient
	return c
}

// Faucet exposes the testnet faucet endpoint for the faucet wallet
// provider.
func (c *Client) Faucet() session.ChainClaimer { return c.faucet }

func assemble(api service, sess *session.Session, router *chain.Router, d submitter, subs *subscription.Manager, opts Options, l *slog.Logger) *Client {
	window := opts.BatchWindow
	if window <= 0 {
		window = batch.DefaultWindow
	}
	ttl := opts.MarketsTTL
	if ttl <= 0 {
		ttl = DefaultMarketsTTL
	}
	clock := opts.Clock
	if clock == nil {
		clock = batch.RealClock()
	}

	c := &Client{
		api:        api,
		session:    sess,
		router:     router,
		markets:    cache.New[string, []*rpc.MarketInfo](),
		marketsTTL: ttl,
		subs:       subs,
		dispatcher: d,
		logger:     l.With("component", "client"),
	}
	c.queue = batch.NewAccumulator(batchAdapter{d}, window, clock, l)
	return c
}

// batchAdapter lets the accumulator hand batches to the dispatcher
// without the batch package depending on dispatch types.
type batchAdapter struct {
	d submitter
}

func (a batchAdapter) Submit(ctx context.Context, orders []order.Order) error {
	_, err := a.d.Submit(ctx, orders, "")
	return err
}

// Connect opens the wallet session, trying providers in order.
func (c *Client) Connect(ctx context.Context, providers ...session.Provider) error {
	return c.session.Connect(ctx, providers...)
}

// Disconnect tears the session down: live subscriptions close, queued
// orders are dropped without dispatching, and the auth token is
// invalidated.
func (c *Client) Disconnect() {
	c.subs.CloseAll()
	c.queue.Stop()
	c.session.Disconnect()
}

func (c *Client) SessionStatus() session.Status { return c.session.Status() }

func (c *Client) Address() string { return c.session.Address() }

func (c *Client) Balance() decimal.Decimal { return c.session.Balance() }

func (c *Client) RefreshBalance(ctx context.Context) (decimal.Decimal, error) {
	return c.session.RefreshBalance(ctx)
}

// QueryMarkets returns active markets, served from cache within the
// configured TTL. Fetched markets seed the chain router so later
// dispatches resolve without falling back to derived chain ids.
func (c *Client) QueryMarkets(ctx context.Context, filters rpc.MarketFilters) ([]*rpc.MarketInfo, error) {
	key := marketsCacheKey(filters)
	if cached, ok := c.markets.Get(key); ok {
		return cached, nil
	}

	markets, err := c.api.Markets(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("couldn't query markets: %w", err)
	}

	for _, m := range markets {
		if m.ChainID != "" {
			c.router.Register(m.ID, m.ChainID)
		}
	}

	c.markets.Set(key, markets, c.marketsTTL)
	return markets, nil
}

func marketsCacheKey(f rpc.MarketFilters) string {
	minVolume := ""
	if f.MinVolume != nil {
		minVolume = f.MinVolume.String()
	}
	return fmt.Sprintf("markets|%s|%s|%d", f.Status, minVolume, f.Limit)
}

// CreateMarket creates a market and invalidates the cached lists so
// the next query observes it.
func (c *Client) CreateMarket(ctx context.Context, params rpc.CreateMarketParams) error {
	if err := c.api.CreateMarket(ctx, params); err != nil {
		return fmt.Errorf("couldn't create market: %w", err)
	}
	c.markets.Clear()
	return nil
}

// RegisterChainRoute pins a market to a destination chain ahead of any
// market query, e.g. from persisted routing state.
func (c *Client) RegisterChainRoute(marketID, chainID string) {
	c.router.Register(marketID, chainID)
}

// PlaceOrder enqueues an order into the debounce window. The session
// is not checked here; an unauthenticated queue fails at dispatch
// time, which keeps offline order entry possible.
func (c *Client) PlaceOrder(o order.Order) {
	c.queue.Enqueue(o)
}

// PendingOrders reports the queue depth.
func (c *Client) PendingOrders() int { return c.queue.Pending() }

// SubmitNow flushes the queue immediately instead of waiting out the
// debounce window.
func (c *Client) SubmitNow(ctx context.Context) error {
	return c.queue.Flush(ctx)
}

// OnBatchEvent registers the listener notified after every flush
// attempt, successful or not.
func (c *Client) OnBatchEvent(fn func(batch.Event)) {
	c.queue.SetListener(fn)
}

func (c *Client) SubscribeMarketUpdates(ctx context.Context, marketIDs []string, cb func(subscription.MarketUpdate)) (*subscription.Handle, error) {
	return c.subs.SubscribeMarketUpdates(ctx, marketIDs, cb)
}

// SubscribeOrderUpdates follows order lifecycle events for a chain.
// An empty chainID follows the session's own chain.
func (c *Client) SubscribeOrderUpdates(ctx context.Context, chainID string, cb func(subscription.OrderUpdate)) (*subscription.Handle, error) {
	if chainID == "" {
		origin, err := c.session.OriginChain()
		if err != nil {
			return nil, err
		}
		chainID = origin
	}
	return c.subs.SubscribeOrderUpdates(ctx, chainID, cb)
}

// ActiveSubscriptions reports the number of open subscription
// channels.
func (c *Client) ActiveSubscriptions() int { return c.subs.Active() }
