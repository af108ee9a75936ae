package domain

import (
	"context"
	"time"
)

// SettledTradeStore persists settled trades.
type SettledTradeStore interface {
	Insert(ctx context.Context, trade SettledTrade) error
	ListByTrader(ctx context.Context, trader string, opts ListOpts) ([]SettledTrade, error)
	ListBefore(ctx context.Context, before time.Time) ([]SettledTrade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// FeeRecordStore persists collected fees.
type FeeRecordStore interface {
	Insert(ctx context.Context, rec FeeRecord) error
	ListByPartner(ctx context.Context, partnerIndex int, opts ListOpts) ([]FeeRecord, error)
}
