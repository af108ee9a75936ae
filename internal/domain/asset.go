// Package domain defines the core types, error taxonomy, and capability
// interfaces shared by every layer of the swap aggregator.
package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the conventional pseudo-address standing in for the chain's
// native asset. The custody vault and venue adapters treat it like any other
// asset key.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Vault is the fund transfer primitive. Transfer moves an amount of an asset
// out of the aggregator's custody to a destination address and must fail
// loudly (never partially) on insufficient balance or a zero destination.
type Vault interface {
	Transfer(ctx context.Context, asset common.Address, to common.Address, amount *big.Int) error
	Balance(ctx context.Context, asset common.Address) (*big.Int, error)
}

// BalanceSource reports an arbitrary holder's balance of an asset. The fee
// exemption oracle uses it to check loyalty-token holdings.
type BalanceSource interface {
	BalanceOf(ctx context.Context, holder common.Address, asset common.Address) (*big.Int, error)
}
