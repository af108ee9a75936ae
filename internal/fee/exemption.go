package fee

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/domain"
)

// ExemptionChecker reports whether a trader trades fee-free.
type ExemptionChecker interface {
	IsFeeExempt(ctx context.Context, trader common.Address) (bool, error)
}

// Exemption waives the fee for traders holding at least EligibleAmount of a
// designated loyalty asset. The eligible amount is adjustable at runtime by
// the administrative boundary.
type Exemption struct {
	balances domain.BalanceSource

	mu             sync.RWMutex
	asset          common.Address
	eligibleAmount *big.Int
}

// NewExemption creates an exemption oracle over the given balance source. A
// nil or zero eligibleAmount disables the exemption entirely.
func NewExemption(balances domain.BalanceSource, asset common.Address, eligibleAmount *big.Int) *Exemption {
	e := &Exemption{balances: balances, asset: asset}
	if eligibleAmount != nil {
		e.eligibleAmount = new(big.Int).Set(eligibleAmount)
	}
	return e
}

// SetEligibleAmount replaces the holding threshold.
func (e *Exemption) SetEligibleAmount(amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount == nil {
		e.eligibleAmount = nil
		return
	}
	e.eligibleAmount = new(big.Int).Set(amount)
}

// EligibleAmount returns the current holding threshold, or nil when the
// exemption is disabled.
func (e *Exemption) EligibleAmount() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.eligibleAmount == nil {
		return nil
	}
	return new(big.Int).Set(e.eligibleAmount)
}

// IsFeeExempt reports whether trader holds at least the eligible amount of
// the loyalty asset.
func (e *Exemption) IsFeeExempt(ctx context.Context, trader common.Address) (bool, error) {
	e.mu.RLock()
	asset := e.asset
	threshold := e.eligibleAmount
	e.mu.RUnlock()

	if threshold == nil || threshold.Sign() <= 0 {
		return false, nil
	}

	balance, err := e.balances.BalanceOf(ctx, trader, asset)
	if err != nil {
		return false, fmt.Errorf("fee: loyalty balance of %s: %w", trader.Hex(), err)
	}
	return balance.Cmp(threshold) >= 0, nil
}

var _ ExemptionChecker = (*Exemption)(nil)
