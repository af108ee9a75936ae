package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/domain"
)

// Sweep moves amount of asset out of custody to the destination address.
// Only the configured owner may sweep; anyone else gets ErrNotOwner. A nil
// amount sweeps the full custody balance of the asset.
func (e *Executor) Sweep(ctx context.Context, caller, asset, to common.Address, amount *big.Int) error {
	if caller != e.owner {
		return fmt.Errorf("executor: sweep by %s: %w", caller.Hex(), domain.ErrNotOwner)
	}

	if amount == nil {
		bal, err := e.ledger.Balance(ctx, asset)
		if err != nil {
			return fmt.Errorf("executor: sweep balance: %w", err)
		}
		amount = bal
	}
	if amount.Sign() == 0 {
		return nil
	}

	if err := e.ledger.Transfer(ctx, asset, to, amount); err != nil {
		return fmt.Errorf("executor: sweep: %w", err)
	}

	e.logger.Info("custody swept",
		slog.String("asset", asset.Hex()),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()))
	return nil
}
