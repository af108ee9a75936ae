package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sincore/aggregator/internal/domain"
)

// FeeRecordStore implements domain.FeeRecordStore using PostgreSQL.
type FeeRecordStore struct {
	pool *pgxpool.Pool
}

// NewFeeRecordStore creates a store backed by the given connection pool.
func NewFeeRecordStore(pool *pgxpool.Pool) *FeeRecordStore {
	return &FeeRecordStore{pool: pool}
}

const feeRecordSelectCols = `id, trade_id, partner_index, partner_wallet,
	asset, amount::text, timestamp`

func scanFeeRecordRows(rows pgx.Rows) ([]domain.FeeRecord, error) {
	var records []domain.FeeRecord
	for rows.Next() {
		var r domain.FeeRecord
		if err := rows.Scan(
			&r.ID, &r.TradeID, &r.PartnerIndex, &r.PartnerWallet,
			&r.Asset, &r.Amount, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Insert persists one collected fee.
func (s *FeeRecordStore) Insert(ctx context.Context, r domain.FeeRecord) error {
	const query = `
		INSERT INTO fee_events (
			id, trade_id, partner_index, partner_wallet,
			asset, amount, timestamp
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7
		)`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.TradeID, r.PartnerIndex, r.PartnerWallet,
		r.Asset, r.Amount, r.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fee record: %w", err)
	}
	return nil
}

// ListByPartner returns a partner's collected fees with pagination and
// optional time filtering, newest first.
func (s *FeeRecordStore) ListByPartner(ctx context.Context, partnerIndex int, opts domain.ListOpts) ([]domain.FeeRecord, error) {
	query := `SELECT ` + feeRecordSelectCols + ` FROM fee_events WHERE partner_index = $1`
	args := []any{partnerIndex}
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
		return nil, fmt.Errorf("postgres: list fee records by partner: %w", err)
	}
	defer rows.Close()

	records, err := scanFeeRecordRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fee records by partner: %w", err)
	}
	return records, nil
}

var _ domain.FeeRecordStore = (*FeeRecordStore)(nil)
