package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartmoney-labs/smbot/internal/domain"
)

// PlannedTradeStore implements domain.TradeLedger on the trades_planned
// table. The table is append-only: rows are never updated or deleted.
type PlannedTradeStore struct {
	pool *pgxpool.Pool
}

// NewPlannedTradeStore creates a store backed by the given connection pool.
func NewPlannedTradeStore(pool *pgxpool.Pool) *PlannedTradeStore {
	return &PlannedTradeStore{pool: pool}
}

// Append inserts one planned trade. A redelivered metrics entry carries the
// same idempotency key, so the duplicate insert is silently skipped via
// ON CONFLICT DO NOTHING.
func (s *PlannedTradeStore) Append(ctx context.Context, t domain.PlannedTrade) error {
	const query = `
		INSERT INTO trades_planned (
			ts, idem_key, symbol, side, qty, entry_price, sl_price, tp_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idem_key) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.TS, t.IdemKey, t.Symbol, string(t.Side),
		t.Qty, t.EntryPrice, t.SLPrice, t.TPPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: append planned trade: %w", err)
	}
	return nil
}

// ListRange returns planned trades with ts in [from, to], oldest first.
func (s *PlannedTradeStore) ListRange(ctx context.Context, from, to time.Time) ([]domain.PlannedTrade, error) {
	const query = `
		SELECT id, ts, idem_key, symbol, side, qty, entry_price, sl_price, tp_price
		FROM trades_planned
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list planned trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.PlannedTrade
	for rows.Next() {
		var t domain.PlannedTrade
		var side string
		if err := rows.Scan(
			&t.ID, &t.TS, &t.IdemKey, &t.Symbol, &side,
			&t.Qty, &t.EntryPrice, &t.SLPrice, &t.TPPrice,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan planned trade: %w", err)
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate planned trades: %w", err)
	}
	return trades, nil
}

// Compile-time interface check.
var _ domain.TradeLedger = (*PlannedTradeStore)(nil)
