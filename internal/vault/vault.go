// Package vault keeps the aggregator's custody balances and the external
// account balances it can observe. All mutations are atomic; a transfer
// either moves the full amount or leaves both sides untouched.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/domain"
)

type balanceKey struct {
	holder common.Address
	asset  common.Address
}

// Ledger is an in-memory custody ledger. The aggregator's own holdings live
// under the custody address; every other holder is an external account whose
// balance the ledger tracks for loyalty checks and settlement credits.
type Ledger struct {
	logger  *slog.Logger
	custody common.Address

	mu       sync.RWMutex
	balances map[balanceKey]*big.Int
}

// NewLedger creates an empty ledger. custody is the address holding the
// aggregator's own funds.
func NewLedger(custody common.Address, logger *slog.Logger) *Ledger {
	return &Ledger{
		logger:   logger.With(slog.String("component", "vault")),
		custody:  custody,
		balances: make(map[balanceKey]*big.Int),
	}
}

// Custody returns the address the ledger holds the aggregator's funds under.
func (l *Ledger) Custody() common.Address {
	return l.custody
}

// Credit adds amount of asset to holder's balance.
func (l *Ledger) Credit(holder, asset common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(holder, asset, amount)
}

// Debit removes amount of asset from holder's balance, failing when the
// holder does not cover it.
func (l *Ledger) Debit(holder, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub(holder, asset, amount)
}

// Transfer moves amount of asset from custody to the destination address. A
// zero destination or an uncovered amount fails without touching balances.
func (l *Ledger) Transfer(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return fmt.Errorf("vault: transfer %s: %w", asset.Hex(), domain.ErrInvalidDestination)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.sub(l.custody, asset, amount); err != nil {
		return err
	}
	l.add(to, asset, amount)

	l.logger.Debug("transfer",
		slog.String("asset", asset.Hex()),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()))
	return nil
}

// Balance returns the custody balance of asset.
func (l *Ledger) Balance(ctx context.Context, asset common.Address) (*big.Int, error) {
	return l.BalanceOf(ctx, l.custody, asset)
}

// BalanceOf returns holder's balance of asset. Unknown holders have a zero
// balance, never an error.
func (l *Ledger) BalanceOf(ctx context.Context, holder, asset common.Address) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[balanceKey{holder: holder, asset: asset}]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (l *Ledger) add(holder, asset common.Address, amount *big.Int) {
	key := balanceKey{holder: holder, asset: asset}
	if bal, ok := l.balances[key]; ok {
		bal.Add(bal, amount)
		return
	}
	l.balances[key] = new(big.Int).Set(amount)
}

func (l *Ledger) sub(holder, asset common.Address, amount *big.Int) error {
	key := balanceKey{holder: holder, asset: asset}
	bal, ok := l.balances[key]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("vault: debit %s from %s: %w", asset.Hex(), holder.Hex(), domain.ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	return nil
}

var (
	_ domain.Vault         = (*Ledger)(nil)
	_ domain.BalanceSource = (*Ledger)(nil)
)
