package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/oddstream/oddstream-go/internal/agent"
	"github.com/oddstream/oddstream-go/internal/batch"
	"github.com/oddstream/oddstream-go/internal/client"
	"github.com/oddstream/oddstream-go/internal/odds"
	"github.com/oddstream/oddstream-go/internal/order"
	"github.com/oddstream/oddstream-go/internal/rpc"
	"github.com/oddstream/oddstream-go/internal/session"
	"github.com/oddstream/oddstream-go/internal/store"
	"github.com/oddstream/oddstream-go/internal/subscription"
)

const usage = `usage: oddstream [-config path] <command> [args]

commands:
  markets            list active markets
  wallet             connect the wallet and print the session
  order <market> <YES|NO> <amount> [max price]
                     place one order and dispatch it immediately
  batch [market:side:amount[:max price] ...]
                     dispatch several orders as one batch (stdin when no args)
  agent              run the market-making agent
  collect            follow live updates and journal them to the database
`

func main() {
	configPath := flag.String("config", "configs/oddstream/config.yaml", "path to config file")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := readConfig(configPath)
	if err != nil {
		log.Fatalf("Couldn't read config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(client.Options{
		ServiceURL:      cfg.Service.URL,
		SubscriptionURL: cfg.Service.SubscriptionURL,
		BatchWindow:     cfg.Batch.Window.Duration(),
		FailFast:        cfg.Batch.FailFast == nil || *cfg.Batch.FailFast,
	}, logger)

	switch flag.Arg(0) {
	case "markets":
		err = runMarkets(ctx, c)
	case "wallet":
		err = runWallet(ctx, c, cfg)
	case "order":
		err = runOrder(ctx, c, cfg, flag.Args()[1:])
	case "batch":
		err = runBatch(ctx, c, cfg, flag.Args()[1:])
	case "agent":
		err = runAgent(ctx, c, cfg, logger)
	case "collect":
		err = runCollect(ctx, c, cfg, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Couldn't run %s: %v", flag.Arg(0), err)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// providers builds the wallet connection chain: the configured chain
// first, the faucet as fallback when enabled.
func providers(c *client.Client, cfg *config) []session.Provider {
	var out []session.Provider
	if cfg.Wallet.ChainID != "" {
		out = append(out, session.KeyfileProvider{
			Key:     cfg.Wallet.PrivateKey.PrivateKey,
			ChainID: cfg.Wallet.ChainID,
		})
	}
	if cfg.Wallet.UseFaucet {
		out = append(out, session.FaucetProvider{
			Key:    cfg.Wallet.PrivateKey.PrivateKey,
			Faucet: c.Faucet(),
		})
	}
	return out
}

func runMarkets(ctx context.Context, c *client.Client) error {
	markets, err := c.QueryMarkets(ctx, rpc.MarketFilters{Status: "active"})
	if err != nil {
		return err
	}

	for _, m := range markets {
		fmt.Printf("%s\t%s\tyes=%s no=%s vol=%s\t%s\n",
			m.ID, m.ChainID, m.YesOdds, m.NoOdds, m.Volume, m.Description)
	}
	return nil
}

func runWallet(ctx context.Context, c *client.Client, cfg *config) error {
	if err := c.Connect(ctx, providers(c, cfg)...); err != nil {
		return err
	}
	defer c.Disconnect()

	fmt.Printf("address:  %s\n", c.Address())
	fmt.Printf("balance:  %s\n", c.Balance())
	fmt.Printf("status:   %s\n", c.SessionStatus())
	return nil
}

func runOrder(ctx context.Context, c *client.Client, cfg *config, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: order <market> <YES|NO> <amount> [max price]")
	}

	o := order.Order{MarketID: args[0]}
	switch strings.ToUpper(args[1]) {
	case "YES":
		o.Side = order.SideYes
	case "NO":
		o.Side = order.SideNo
	default:
		return fmt.Errorf("side must be YES or NO, got %q", args[1])
	}

	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("couldn't parse amount: %w", err)
	}
	o.Amount = amount

	if len(args) > 3 {
		maxPrice, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("couldn't parse max price: %w", err)
		}
		o.MaxPrice = &maxPrice
	}

	if err := c.Connect(ctx, providers(c, cfg)...); err != nil {
		return err
	}
	defer c.Disconnect()

	reportBatchEvents(c)
	c.PlaceOrder(o)
	return c.SubmitNow(ctx)
}

// runBatch takes orders as market:side:amount[:max price] arguments,
// or reads them in the same form from stdin when no arguments are
// given, and dispatches them as one batch.
func runBatch(ctx context.Context, c *client.Client, cfg *config, args []string) error {
	specs := args
	if len(specs) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if text := strings.TrimSpace(scanner.Text()); text != "" {
				specs = append(specs, text)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("couldn't read stdin: %w", err)
		}
	}

	orders := make([]order.Order, 0, len(specs))
	for _, spec := range specs {
		o, err := parseOrderSpec(spec)
		if err != nil {
			return err
		}
		orders = append(orders, o)
	}
	if len(orders) == 0 {
		return fmt.Errorf("no orders to dispatch")
	}

	if err := c.Connect(ctx, providers(c, cfg)...); err != nil {
		return err
	}
	defer c.Disconnect()

	reportBatchEvents(c)
	for _, o := range orders {
		c.PlaceOrder(o)
	}
	return c.SubmitNow(ctx)
}

func parseOrderSpec(spec string) (order.Order, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return order.Order{}, fmt.Errorf("order %q must be market:side:amount[:max price]", spec)
	}

	o := order.Order{MarketID: parts[0]}
	switch strings.ToUpper(parts[1]) {
	case "YES":
		o.Side = order.SideYes
	case "NO":
		o.Side = order.SideNo
	default:
		return order.Order{}, fmt.Errorf("side in %q must be YES or NO", spec)
	}

	amount, err := decimal.NewFromString(parts[2])
	if err != nil {
		return order.Order{}, fmt.Errorf("couldn't parse amount in %q: %w", spec, err)
	}
	o.Amount = amount

	if len(parts) == 4 {
		maxPrice, err := decimal.NewFromString(parts[3])
		if err != nil {
			return order.Order{}, fmt.Errorf("couldn't parse max price in %q: %w", spec, err)
		}
		o.MaxPrice = &maxPrice
	}
	return o, nil
}

func reportBatchEvents(c *client.Client) {
	c.OnBatchEvent(func(e batch.Event) {
		if e.Type == batch.EventSuccess {
			fmt.Printf("dispatched %d orders\n", e.Count)
			return
		}
		fmt.Printf("dispatch failed for %d orders: %v\n", e.Count, e.Err)
	})
}

func runAgent(ctx context.Context, c *client.Client, cfg *config, logger *slog.Logger) error {
	if err := validateAgentConfig(cfg); err != nil {
		return err
	}
	if err := c.Connect(ctx, providers(c, cfg)...); err != nil {
		return err
	}
	defer c.Disconnect()

	maker := agent.New(c, c, agent.Config{
		Markets:     cfg.Agent.Markets,
		Spread:      cfg.Agent.Spread.Decimal,
		OrderSize:   cfg.Agent.OrderSize.Decimal,
		MaxExposure: cfg.Agent.MaxExposure.Decimal,
		Interval:    cfg.Agent.RebalanceInterval.Duration(),
	}, logger)

	err := maker.Run(ctx)
	if ctx.Err() != nil {
		return nil // clean shutdown on signal
	}
	return err
}

func runCollect(ctx context.Context, c *client.Client, cfg *config, logger *slog.Logger) error {
	if err := validateDatabaseConfig(cfg); err != nil {
		return err
	}

	snapshotInterval := cfg.Collector.SnapshotInterval.Duration()
	if snapshotInterval <= 0 {
		snapshotInterval = 10 * time.Second
	}

	pool, err := store.NewPool(ctx, store.PoolConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		PoolSize: cfg.Database.PoolSize,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("couldn't connect to database: %w", err)
	}
	db := store.New(pool)
	defer db.Close()

	if err := c.Connect(ctx, providers(c, cfg)...); err != nil {
		return err
	}
	defer c.Disconnect()

	// Routes journaled by earlier runs resolve even before the first
	// market query lands.
	routes, err := db.MarketChains(ctx)
	if err != nil {
		return err
	}
	for marketID, chainID := range routes {
		c.RegisterChainRoute(marketID, chainID)
	}

	markets, err := c.QueryMarkets(ctx, rpc.MarketFilters{Status: "active"})
	if err != nil {
		return err
	}

	tracker := odds.NewTracker(cfg.Collector.HistoryWindow.Duration(), logger)
	journal := store.NewJournal(tracker, db, snapshotInterval, logger)

	if err := journal.RecordMarkets(ctx, markets); err != nil {
		return err
	}

	marketIDs := make([]string, 0, len(markets))
	for _, m := range markets {
		marketIDs = append(marketIDs, m.ID)
	}

	marketSub, err := c.SubscribeMarketUpdates(ctx, marketIDs, func(u subscription.MarketUpdate) {
		var eventTime time.Time
		if u.Timestamp > 0 {
			eventTime = time.Unix(u.Timestamp, 0).UTC()
		}
		tracker.Apply(odds.Update{
			MarketID:  u.MarketID,
			Yes:       u.YesOdds,
			No:        u.NoOdds,
			Volume:    u.Volume,
			Status:    u.Status,
			EventTime: eventTime,
		})
	})
	if err != nil {
		return fmt.Errorf("couldn't subscribe to market updates: %w", err)
	}
	defer marketSub.Unsubscribe()

	orderSub, err := c.SubscribeOrderUpdates(ctx, "", func(u subscription.OrderUpdate) {
		journal.RecordOrderEvent(ctx, u)
	})
	if err != nil {
		return fmt.Errorf("couldn't subscribe to order updates: %w", err)
	}
	defer orderSub.Unsubscribe()

	logger.Info("collecting", "markets", len(marketIDs), "snapshot_interval", snapshotInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		journal.Start(ctx)
		return ctx.Err()
	})
	g.Go(func() error {
		// Markets created after startup still get their metadata and
		// chain routes journaled.
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				refreshed, err := c.QueryMarkets(ctx, rpc.MarketFilters{Status: "active"})
				if err != nil {
					logger.Warn("couldn't refresh markets", "error", err)
					continue
				}
				if err := journal.RecordMarkets(ctx, refreshed); err != nil {
					logger.Warn("couldn't journal markets", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
