package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RouteAdapter is the capability every liquidity venue exposes. Quote is
// read-only; Execute performs the underlying exchange and credits the
// returned destination amount to the aggregator's custody.
type RouteAdapter interface {
	// Quote returns the destination amount the venue would pay for amountIn
	// of srcAsset, without moving funds.
	Quote(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int) (*big.Int, error)

	// Execute swaps amountIn of srcAsset for destAsset and returns the gross
	// amount credited back to the caller's custody.
	Execute(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int) (*big.Int, error)
}

// TradingRoute is one registered venue. Indices are dense, assigned at
// registration, and never reused; routes are deactivated rather than removed.
type TradingRoute struct {
	Index   int
	Name    string
	Adapter RouteAdapter
	Active  bool
}
