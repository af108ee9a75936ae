package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sincore/aggregator/internal/domain"
)

// SettledTradeStore implements domain.SettledTradeStore using PostgreSQL.
type SettledTradeStore struct {
	pool *pgxpool.Pool
}

// NewSettledTradeStore creates a store backed by the given connection pool.
func NewSettledTradeStore(pool *pgxpool.Pool) *SettledTradeStore {
	return &SettledTradeStore{pool: pool}
}

// Amounts are NUMERIC in the schema; select them as text so they scan
// straight into the string fields.
const settledTradeSelectCols = `id, trader, src_asset, dest_asset,
	amount_in::text, gross_out::text, fee_amount::text, net_out::text,
	route_indexes, partner_index, timestamp`

func scanSettledTradeRows(rows pgx.Rows) ([]domain.SettledTrade, error) {
	var trades []domain.SettledTrade
	for rows.Next() {
		var t domain.SettledTrade
		if err := rows.Scan(
			&t.ID, &t.Trader, &t.SrcAsset, &t.DestAsset,
			&t.AmountIn, &t.GrossOut, &t.FeeAmount, &t.NetOut,
			&t.RouteIndexes, &t.PartnerIndex, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert persists one settled trade.
func (s *SettledTradeStore) Insert(ctx context.Context, t domain.SettledTrade) error {
	const query = `
		INSERT INTO settled_trades (
			id, trader, src_asset, dest_asset,
			amount_in, gross_out, fee_amount, net_out,
			route_indexes, partner_index, timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Trader, t.SrcAsset, t.DestAsset,
		t.AmountIn, t.GrossOut, t.FeeAmount, t.NetOut,
		t.RouteIndexes, t.PartnerIndex, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert settled trade: %w", err)
	}
	return nil
}

// ListByTrader returns a trader's settled trades with pagination and optional
// time filtering, newest first.
func (s *SettledTradeStore) ListByTrader(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.SettledTrade, error) {
	query := `SELECT ` + settledTradeSelectCols + ` FROM settled_trades WHERE trader = $1`
	args := []any{trader}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled trades by trader: %w", err)
	}
	defer rows.Close()

	trades, err := scanSettledTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled trades by trader: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades settled strictly before the given time, for
// archiving, oldest first.
func (s *SettledTradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettledTrade, error) {
	query := `SELECT ` + settledTradeSelectCols + ` FROM settled_trades WHERE timestamp < $1 ORDER BY timestamp ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled trades before: %w", err)
	}
	defer rows.Close()
	return scanSettledTradeRows(rows)
}

// DeleteBefore deletes trades settled before the given time and returns the
// number removed.
func (s *SettledTradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM settled_trades WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.SettledTradeStore = (*SettledTradeStore)(nil)
