// Package dispatch partitions an order batch by destination chain,
// sequences each partition, and sends one cross-chain message per
// destination.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oddstream/oddstream-go/internal/order"
	"github.com/oddstream/oddstream-go/internal/rpc"
)

// ErrMissingOriginChain is returned when neither the caller nor the
// session supplies an origin chain.
var ErrMissingOriginChain = errors.New("no origin chain id available")

// Authorizer is the session slice the dispatcher needs: an origin
// chain while connected, ErrUnauthenticated otherwise.
type Authorizer interface {
	OriginChain() (string, error)
}

// Router resolves a market to its destination chain.
type Router interface {
	Resolve(marketID string) string
}

// Sequencer produces the next nonce for an origin chain, serialized
// per origin.
type Sequencer interface {
	Next(ctx context.Context, originChainID string) (uint64, error)
}

// Sender is the cross-chain dispatch endpoint.
type Sender interface {
	Dispatch(ctx context.Context, req rpc.DispatchRequest) (string, error)
}

// Config tunes failure semantics. With FailFast (the default wiring),
// the first group failure aborts the whole submit and the caller sees
// only the error. Without it, remaining groups are still attempted
// and the per-group outcomes are reported alongside the first error.
type Config struct {
	FailFast bool
}

// GroupResult is the outcome for one destination chain.
type GroupResult struct {
	DestinationChainID string
	Orders             []order.Order
	Nonce              uint64
	TransactionID      string
	Dispatched         bool
	Err                error
}

// Result aggregates a fully attempted submit.
type Result struct {
	TransactionIDs []string
	Groups         []GroupResult
	TotalOrders    int
	Timestamp      time.Time
}

type Dispatcher struct {
	session Authorizer
	router  Router
	seq     Sequencer
	sender  Sender
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

func New(session Authorizer, router Router, seq Sequencer, sender Sender, cfg Config, l *slog.Logger) *Dispatcher {
	return &Dispatcher{
		session: session,
		router:  router,
		seq:     seq,
		sender:  sender,
		cfg:     cfg,
		now:     time.Now,
		logger:  l.With("component", "dispatcher"),
	}
}

// Submit partitions orders by destination chain and sends one message
// per destination, in first-seen destination order. Groups are sent
// sequentially: nonces are serialized per origin chain, so
// parallelizing sends would buy nothing and risk reordering.
func (d *Dispatcher) Submit(ctx context.Context, orders []order.Order, originChainID string) (*Result, error) {
	if len(orders) == 0 {
		return &Result{Timestamp: d.now()}, nil
	}

	// An active session is required even when the origin is explicit:
	// the dispatch endpoint itself is authenticated.
	sessionOrigin, err := d.session.OriginChain()
	if err != nil {
		return nil, err
	}

	origin := originChainID
	if origin == "" {
		origin = sessionOrigin
	}
	if origin == "" {
		return nil, ErrMissingOriginChain
	}

	now := d.now()
	groups := d.partition(orders, now)

	result := &Result{
		TotalOrders: len(orders),
		Timestamp:   now,
	}

	var firstErr error
	for i := range groups {
		g := &groups[i]

		if firstErr != nil && d.cfg.FailFast {
			break
		}

		nonce, err := d.seq.Next(ctx, origin)
		if err != nil {
			g.Err = fmt.Errorf("couldn't sequence group for chain %s: %w", g.DestinationChainID, err)
		} else {
			g.Nonce = nonce
			txID, err := d.sender.Dispatch(ctx, rpc.DispatchRequest{
				OriginChainID:      origin,
				DestinationChainID: g.DestinationChainID,
				Message: rpc.BatchMessage{
					Type:        rpc.BatchMessageType,
					UserChainID: origin,
					Orders:      g.Orders,
					Nonce:       nonce,
				},
				Timestamp: now,
			})
			if err != nil {
				g.Err = fmt.Errorf("couldn't dispatch group to chain %s: %w", g.DestinationChainID, err)
			} else {
				g.TransactionID = txID
				g.Dispatched = true
				result.TransactionIDs = append(result.TransactionIDs, txID)
			}
		}

		if g.Err != nil && firstErr == nil {
			firstErr = g.Err
		}

		d.logger.Info("dispatch group attempted",
			"destination", g.DestinationChainID,
			"orders", len(g.Orders),
			"nonce", g.Nonce,
			"dispatched", g.Dispatched,
		)
	}

	result.Groups = groups

	if firstErr != nil {
		if d.cfg.FailFast {
			return nil, firstErr
		}
		return result, firstErr
	}
	return result, nil
}

// partition buckets orders by destination chain, preserving the order
// destinations are first seen and the enqueue order within each
// group. Orders are stamped with a client id, submission time and
// pending status on the way in.
func (d *Dispatcher) partition(orders []order.Order, now time.Time) []GroupResult {
	index := make(map[string]int)
	var groups []GroupResult

	for _, o := range orders {
		o.Stamp(now)
		dest := d.router.Resolve(o.MarketID)

		i, ok := index[dest]
		if !ok {
			i = len(groups)
			index[dest] = i
			groups = append(groups, GroupResult{DestinationChainID: dest})
		}
		groups[i].Orders = append(groups[i].Orders, o)
	}
	return groups
}
