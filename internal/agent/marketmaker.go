// Package agent runs an automated market-making loop on top of the
// client facade: it quotes both sides of selected markets around the
// current odds and rebalances on an interval.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddstream/oddstream-go/internal/order"
	"github.com/oddstream/oddstream-go/internal/rpc"
)

// orderPlacer is the facade slice the agent submits through.
type orderPlacer interface {
	PlaceOrder(o order.Order)
	SubmitNow(ctx context.Context) error
}

// marketSource supplies the markets to quote.
type marketSource interface {
	QueryMarkets(ctx context.Context, filters rpc.MarketFilters) ([]*rpc.MarketInfo, error)
}

type Config struct {
	// Markets restricts quoting to these market ids. Empty means all
	// active markets.
	Markets []string
	// Spread is the total quoted spread around the mid probability,
	// e.g. 0.04 quotes 2 cents inside on each side.
	Spread decimal.Decimal
	// OrderSize is the stake per quoted side.
	OrderSize decimal.Decimal
	// MaxExposure caps the total stake placed per rebalance cycle.
	MaxExposure decimal.Decimal
	// Interval between rebalances.
	Interval time.Duration
}

type MarketMaker struct {
	client  orderPlacer
	markets marketSource
	cfg     Config
	logger  *slog.Logger
}

func New(client orderPlacer, markets marketSource, cfg Config, l *slog.Logger) *MarketMaker {
	return &MarketMaker{
		client:  client,
		markets: markets,
		cfg:     cfg,
		logger:  l.With("component", "market_maker"),
	}
}

// Run rebalances on the configured interval until the context is
// cancelled. A failed rebalance is logged and retried next tick.
func (m *MarketMaker) Run(ctx context.Context) error {
	if m.cfg.Interval <= 0 {
		return fmt.Errorf("invalid rebalance interval %s", m.cfg.Interval)
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("market maker started",
		"interval", m.cfg.Interval,
		"spread", m.cfg.Spread,
		"order_size", m.cfg.OrderSize,
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("market maker stopped", "error", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := m.rebalance(ctx); err != nil {
				m.logger.Error("rebalance failed", "error", err)
			}
		}
	}
}

var one = decimal.NewFromInt(1)

// rebalance quotes both sides of every selected market and flushes
// the batch in one dispatch.
func (m *MarketMaker) rebalance(ctx context.Context) error {
	markets, err := m.markets.QueryMarkets(ctx, rpc.MarketFilters{Status: "active"})
	if err != nil {
		return fmt.Errorf("couldn't fetch markets: %w", err)
	}

	selected := m.filter(markets)
	if len(selected) == 0 {
		return nil
	}

	halfSpread := m.cfg.Spread.Div(decimal.NewFromInt(2))
	exposure := decimal.Zero
	placed := 0

	for _, mkt := range selected {
		if m.cfg.MaxExposure.IsPositive() && exposure.GreaterThanOrEqual(m.cfg.MaxExposure) {
			m.logger.Warn("exposure cap reached", "exposure", exposure)
			break
		}

		mid := mkt.YesOdds.Decimal()
		yesBid := mid.Sub(halfSpread)
		noBid := one.Sub(mid).Sub(halfSpread)

		for _, quote := range []struct {
			side  order.Side
			price decimal.Decimal
		}{
			{order.SideYes, yesBid},
			{order.SideNo, noBid},
		} {
			if !quote.price.IsPositive() || quote.price.GreaterThanOrEqual(one) {
				m.logger.Debug("skipping unquotable side",
					"market", mkt.ID, "side", quote.side, "price", quote.price)
				continue
			}

			price := quote.price
			m.client.PlaceOrder(order.Order{
				MarketID: mkt.ID,
				Side:     quote.side,
				Amount:   m.cfg.OrderSize,
				MaxPrice: &price,
			})
			exposure = exposure.Add(m.cfg.OrderSize)
			placed++
		}
	}

	if placed == 0 {
		return nil
	}

	if err := m.client.SubmitNow(ctx); err != nil {
		return fmt.Errorf("couldn't submit quotes: %w", err)
	}

	m.logger.Info("rebalanced", "markets", len(selected), "orders", placed, "exposure", exposure)
	return nil
}

func (m *MarketMaker) filter(markets []*rpc.MarketInfo) []*rpc.MarketInfo {
	if len(m.cfg.Markets) == 0 {
		return markets
	}

	want := make(map[string]bool, len(m.cfg.Markets))
	for _, id := range m.cfg.Markets {
		want[id] = true
	}

	var out []*rpc.MarketInfo
	for _, mkt := range markets {
		if want[mkt.ID] {
			out = append(out, mkt)
		}
	}
	return out
}
