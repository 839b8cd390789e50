package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oddstream/oddstream-go/internal/odds"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every query
// runs either directly on the pool or inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Queries struct {
	db DBTX
}

func newQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// MarketRow is the persisted market metadata, the source for offline
// chain-route seeding.
type MarketRow struct {
	ID             string
	ChainID        string
	Description    string
	Status         string
	OracleType     string
	ResolutionTime int64
}

const upsertMarketSQL = `
INSERT INTO markets (id, chain_id, description, status, oracle_type, resolution_time)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	chain_id        = EXCLUDED.chain_id,
	description     = EXCLUDED.description,
	status          = EXCLUDED.status,
	oracle_type     = EXCLUDED.oracle_type,
	resolution_time = EXCLUDED.resolution_time
`

func (q *Queries) UpsertMarket(ctx context.Context, m MarketRow) error {
	_, err := q.db.Exec(ctx, upsertMarketSQL,
		m.ID, m.ChainID, m.Description, m.Status, m.OracleType, m.ResolutionTime)
	if err != nil {
		return fmt.Errorf("couldn't upsert market %s: %w", m.ID, err)
	}
	return nil
}

const marketChainsSQL = `SELECT id, chain_id FROM markets WHERE chain_id <> ''`

// MarketChains returns the persisted market to chain mapping.
func (q *Queries) MarketChains(ctx context.Context) (map[string]string, error) {
	rows, err := q.db.Query(ctx, marketChainsSQL)
	if err != nil {
		return nil, fmt.Errorf("couldn't load market chains: %w", err)
	}
	defer rows.Close()

	routes := make(map[string]string)
	for rows.Next() {
		var id, chainID string
		if err := rows.Scan(&id, &chainID); err != nil {
			return nil, fmt.Errorf("couldn't scan market chain row: %w", err)
		}
		routes[id] = chainID
	}
	return routes, rows.Err()
}

// OddsSnapshotRow is one point of a market's odds history. Odds and
// volume are stored in micro units, matching the wire encoding.
type OddsSnapshotRow struct {
	Time     time.Time
	MarketID string
	YesOdds  odds.Odds
	NoOdds   odds.Odds
	Volume   odds.Odds
}

const insertOddsSnapshotSQL = `
INSERT INTO odds_snapshots (time, market_id, yes_odds, no_odds, volume)
VALUES ($1, $2, $3, $4, $5)
`

// InsertOddsSnapshotBatch writes snapshot rows in one round trip and
// returns the number of rows written.
func (q *Queries) InsertOddsSnapshotBatch(ctx context.Context, rows []OddsSnapshotRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertOddsSnapshotSQL,
			r.Time, r.MarketID, int64(r.YesOdds), int64(r.NoOdds), int64(r.Volume))
	}

	results := q.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("couldn't insert odds snapshot %d: %w", i, err)
		}
	}
	return len(rows), nil
}

// OrderEventRow is one order lifecycle event from the push channel.
type OrderEventRow struct {
	Time     time.Time
	OrderID  string
	MarketID string
	ChainID  string
	Status   string
}

const insertOrderEventSQL = `
INSERT INTO order_events (time, order_id, market_id, chain_id, status)
VALUES ($1, $2, $3, $4, $5)
`

func (q *Queries) InsertOrderEvent(ctx context.Context, e OrderEventRow) error {
	_, err := q.db.Exec(ctx, insertOrderEventSQL,
		e.Time, e.OrderID, e.MarketID, e.ChainID, e.Status)
	if err != nil {
		return fmt.Errorf("couldn't insert order event %s: %w", e.OrderID, err)
	}
	return nil
}
