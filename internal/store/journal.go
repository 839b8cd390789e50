package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/oddstream/oddstream-go/internal/odds"
	"github.com/oddstream/oddstream-go/internal/rpc"
	"github.com/oddstream/oddstream-go/internal/subscription"
)

// journalDB is the Store slice the journal writes through, split out
// so tests run without a database.
type journalDB interface {
	UpsertMarket(ctx context.Context, m MarketRow) error
	InsertOddsSnapshotBatch(ctx context.Context, rows []OddsSnapshotRow) (int, error)
	InsertOrderEvent(ctx context.Context, e OrderEventRow) error
}

// Journal periodically captures the odds tracker state and persists
// it, and records order lifecycle events as they arrive.
type Journal struct {
	tracker  *odds.Tracker
	db       journalDB
	interval time.Duration
	logger   *slog.Logger
}

func NewJournal(tracker *odds.Tracker, db journalDB, interval time.Duration, l *slog.Logger) *Journal {
	return &Journal{
		tracker:  tracker,
		db:       db,
		interval: interval,
		logger:   l.With("component", "journal"),
	}
}

// Start runs the snapshot loop until the context is cancelled.
func (j *Journal) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("started journal", "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("journal stopped", "error", ctx.Err())
			return
		case <-ticker.C:
			j.writeSnapshots(ctx)
		}
	}
}

func (j *Journal) writeSnapshots(ctx context.Context) {
	states := j.tracker.Snapshot()
	if len(states) == 0 {
		return
	}

	now := time.Now()
	rows := make([]OddsSnapshotRow, 0, len(states))
	for _, s := range states {
		eventTime := s.UpdatedAt
		if eventTime.IsZero() {
			eventTime = now
		}
		rows = append(rows, OddsSnapshotRow{
			Time:     eventTime,
			MarketID: s.MarketID,
			YesOdds:  s.Yes,
			NoOdds:   s.No,
			Volume:   s.Volume,
		})
	}

	count, err := j.db.InsertOddsSnapshotBatch(ctx, rows)
	if err != nil {
		j.logger.Error("failed to write odds snapshots", "error", err)
		return
	}

	j.logger.Debug("wrote odds snapshots", "markets", len(states), "rows", count)
}

// RecordMarkets persists market metadata, keeping the chain routes
// available across restarts.
func (j *Journal) RecordMarkets(ctx context.Context, markets []*rpc.MarketInfo) error {
	for _, m := range markets {
		row := MarketRow{
			ID:             m.ID,
			ChainID:        m.ChainID,
			Description:    m.Description,
			Status:         m.Status,
			OracleType:     m.OracleType,
			ResolutionTime: m.ResolutionTime,
		}
		if err := j.db.UpsertMarket(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// RecordOrderEvent persists one order lifecycle event from the push
// channel.
func (j *Journal) RecordOrderEvent(ctx context.Context, u subscription.OrderUpdate) {
	eventTime := time.Unix(u.Timestamp, 0).UTC()
	if u.Timestamp == 0 {
		eventTime = time.Now().UTC()
	}

	err := j.db.InsertOrderEvent(ctx, OrderEventRow{
		Time:     eventTime,
		OrderID:  u.OrderID,
		MarketID: u.MarketID,
		ChainID:  u.ChainID,
		Status:   u.Status,
	})
	if err != nil {
		j.logger.Error("failed to record order event", "order_id", u.OrderID, "error", err)
	}
}
