// Package executor settles single-route and split trades against registered
// venues, collects the partner fee on the aggregate output, and pays the
// trader the net amount. Settlement is all-or-nothing: no funds move unless
// every leg executed and the post-fee output clears the trader's minimum.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/fee"
	"github.com/sincore/aggregator/internal/registry"
)

// CustodyLedger is the fund store the executor settles against. Credit and
// Debit adjust holder balances; Transfer pays out of custody.
type CustodyLedger interface {
	domain.Vault
	Credit(holder, asset common.Address, amount *big.Int)
	Debit(holder, asset common.Address, amount *big.Int) error
	Custody() common.Address
}

// TradeRequest describes a single-route trade.
type TradeRequest struct {
	Trader       common.Address
	SrcAsset     common.Address
	DestAsset    common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	RouteIndex   int
	PartnerIndex int
}

// SplitTradeRequest describes a trade split across several routes. LegAmounts
// must be positionally aligned with RouteIndexes and sum to AmountIn.
type SplitTradeRequest struct {
	Trader       common.Address
	SrcAsset     common.Address
	DestAsset    common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	RouteIndexes []int
	LegAmounts   []*big.Int
	PartnerIndex int
}

// Executor is the settlement engine. It resolves routes and partner tiers,
// executes venue legs, applies the fee once on the aggregate gross output,
// enforces the trader's slippage floor, and moves funds through the ledger.
type Executor struct {
	routes    *registry.Routes
	partners  *registry.Partners
	exemption fee.ExemptionChecker
	ledger    CustodyLedger
	owner     common.Address
	logger    *slog.Logger

	tradeStore domain.SettledTradeStore
	feeStore   domain.FeeRecordStore
	bus        domain.EventBus
}

// NewExecutor creates an executor over the given registries and ledger. owner
// is the only address allowed to sweep custody funds.
func NewExecutor(
	routes *registry.Routes,
	partners *registry.Partners,
	exemption fee.ExemptionChecker,
	ledger CustodyLedger,
	owner common.Address,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		routes:    routes,
		partners:  partners,
		exemption: exemption,
		ledger:    ledger,
		owner:     owner,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// SetRecording enables persistence of settled trades and collected fees.
func (e *Executor) SetRecording(trades domain.SettledTradeStore, fees domain.FeeRecordStore) {
	e.tradeStore = trades
	e.feeStore = fees
}

// SetEventBus enables settlement event publication.
func (e *Executor) SetEventBus(bus domain.EventBus) {
	e.bus = bus
}

// Trade settles a single-route trade and returns the gross, fee, and net
// amounts. The fee is charged on the gross output; the net amount must meet
// MinAmountOut or nothing settles.
func (e *Executor) Trade(ctx context.Context, req TradeRequest) (domain.TradeOutcome, error) {
	split := SplitTradeRequest{
		Trader:       req.Trader,
		SrcAsset:     req.SrcAsset,
		DestAsset:    req.DestAsset,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		RouteIndexes: []int{req.RouteIndex},
		LegAmounts:   []*big.Int{req.AmountIn},
		PartnerIndex: req.PartnerIndex,
	}
	return e.SplitTrades(ctx, split)
}

// SplitTrades settles a trade across multiple routes. Every leg must execute;
// the fee applies once to the summed gross output, not per leg.
func (e *Executor) SplitTrades(ctx context.Context, req SplitTradeRequest) (domain.TradeOutcome, error) {
	if err := validateSplit(req); err != nil {
		return domain.TradeOutcome{}, err
	}

	log := e.logger.With(
		slog.String("trader", req.Trader.Hex()),
		slog.String("src", req.SrcAsset.Hex()),
		slog.String("dest", req.DestAsset.Hex()),
	)

	// Resolve every route before executing any leg.
	legs := make([]domain.TradingRoute, len(req.RouteIndexes))
	for i, idx := range req.RouteIndexes {
		route, err := e.routes.Resolve(idx)
		if err != nil {
			return domain.TradeOutcome{}, err
		}
		legs[i] = route
	}

	gross := new(big.Int)
	for i, route := range legs {
		out, err := route.Adapter.Execute(ctx, req.SrcAsset, req.DestAsset, req.LegAmounts[i])
		if err != nil {
			return domain.TradeOutcome{}, fmt.Errorf("executor: route %d (%s): %w: %v",
				route.Index, route.Name, domain.ErrQuoteFailed, err)
		}
		gross.Add(gross, out)
	}

	partner := e.partners.Resolve(req.PartnerIndex)

	exempt, err := e.exemption.IsFeeExempt(ctx, req.Trader)
	if err != nil {
		return domain.TradeOutcome{}, fmt.Errorf("executor: exemption check: %w", err)
	}

	feeAmount := fee.Compute(gross, partner, exempt)
	net := new(big.Int).Sub(gross, feeAmount)

	if req.MinAmountOut != nil && net.Cmp(req.MinAmountOut) < 0 {
		return domain.TradeOutcome{}, fmt.Errorf("executor: net %s below minimum %s: %w",
			net, req.MinAmountOut, domain.ErrSlippageExceeded)
	}

	if err := e.settle(ctx, req, gross, feeAmount, net); err != nil {
		return domain.TradeOutcome{}, err
	}

	outcome := domain.TradeOutcome{GrossAmountOut: gross, FeeAmount: feeAmount, NetAmountOut: net}
	e.record(ctx, req, partner, outcome)

	log.Info("trade settled",
		slog.String("amount_in", req.AmountIn.String()),
		slog.String("gross_out", gross.String()),
		slog.String("fee", feeAmount.String()),
		slog.String("net_out", net.String()),
		slog.Int("partner_index", partner.Index),
		slog.Int("legs", len(legs)))
	return outcome, nil
}

// QuoteOne returns the post-fee outcome of a single-route trade without
// moving funds. Quotes never consult the loyalty exemption.
func (e *Executor) QuoteOne(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int, routeIndex, partnerIndex int) (domain.TradeOutcome, error) {
	route, err := e.routes.Resolve(routeIndex)
	if err != nil {
		return domain.TradeOutcome{}, err
	}

	gross, err := route.Adapter.Quote(ctx, srcAsset, destAsset, amountIn)
	if err != nil {
		return domain.TradeOutcome{}, fmt.Errorf("executor: route %d (%s): %w: %v",
			route.Index, route.Name, domain.ErrQuoteFailed, err)
	}
	return e.applyFee(gross, partnerIndex), nil
}

// QuoteSplit returns the post-fee outcome of a split trade without moving
// funds. The fee applies once to the aggregate gross output.
func (e *Executor) QuoteSplit(ctx context.Context, srcAsset, destAsset common.Address, routeIndexes []int, legAmounts []*big.Int, partnerIndex int) (domain.TradeOutcome, error) {
	if len(routeIndexes) == 0 {
		return domain.TradeOutcome{}, domain.ErrEmptyRouteSet
	}
	if len(routeIndexes) != len(legAmounts) {
		return domain.TradeOutcome{}, domain.ErrRouteCountMismatch
	}

	gross := new(big.Int)
	for i, idx := range routeIndexes {
		route, err := e.routes.Resolve(idx)
		if err != nil {
			return domain.TradeOutcome{}, err
		}
		out, err := route.Adapter.Quote(ctx, srcAsset, destAsset, legAmounts[i])
		if err != nil {
			return domain.TradeOutcome{}, fmt.Errorf("executor: route %d (%s): %w: %v",
				route.Index, route.Name, domain.ErrQuoteFailed, err)
		}
		gross.Add(gross, out)
	}
	return e.applyFee(gross, partnerIndex), nil
}

func (e *Executor) applyFee(gross *big.Int, partnerIndex int) domain.TradeOutcome {
	partner := e.partners.Resolve(partnerIndex)
	feeAmount := fee.Compute(gross, partner, false)
	return domain.TradeOutcome{
		GrossAmountOut: gross,
		FeeAmount:      feeAmount,
		NetAmountOut:   new(big.Int).Sub(gross, feeAmount),
	}
}

// settle moves the funds for an accepted trade: the trader's input leaves
// their account, the venue proceeds enter custody, and custody pays the
// partner fee and the trader's net in the destination asset.
func (e *Executor) settle(ctx context.Context, req SplitTradeRequest, gross, feeAmount, net *big.Int) error {
	if err := e.ledger.Debit(req.Trader, req.SrcAsset, req.AmountIn); err != nil {
		return err
	}
	e.ledger.Credit(e.ledger.Custody(), req.DestAsset, gross)

	partner := e.partners.Resolve(req.PartnerIndex)
	if feeAmount.Sign() > 0 {
		if err := e.ledger.Transfer(ctx, req.DestAsset, partner.Wallet, feeAmount); err != nil {
			return fmt.Errorf("executor: fee payout: %w", err)
		}
	}
	if err := e.ledger.Transfer(ctx, req.DestAsset, req.Trader, net); err != nil {
		return fmt.Errorf("executor: trader payout: %w", err)
	}
	return nil
}

// record persists the settled trade and publishes settlement events. Failures
// here never unwind the trade; they are logged and dropped.
func (e *Executor) record(ctx context.Context, req SplitTradeRequest, partner domain.PartnerRecord, outcome domain.TradeOutcome) {
	tradeID := uuid.New().String()
	now := time.Now().UTC()

	if e.tradeStore != nil {
		indexes := make([]int32, len(req.RouteIndexes))
		for i, idx := range req.RouteIndexes {
			indexes[i] = int32(idx)
		}
		trade := domain.SettledTrade{
			ID:           tradeID,
			Trader:       req.Trader.Hex(),
			SrcAsset:     req.SrcAsset.Hex(),
			DestAsset:    req.DestAsset.Hex(),
			AmountIn:     req.AmountIn.String(),
			GrossOut:     outcome.GrossAmountOut.String(),
			FeeAmount:    outcome.FeeAmount.String(),
			NetOut:       outcome.NetAmountOut.String(),
			RouteIndexes: indexes,
			PartnerIndex: partner.Index,
			Timestamp:    now,
		}
		if err := e.tradeStore.Insert(ctx, trade); err != nil {
			e.logger.Warn("settled trade record failed", slog.String("error", err.Error()))
		}
	}

	if e.feeStore != nil && outcome.FeeAmount.Sign() > 0 {
		rec := domain.FeeRecord{
			ID:            uuid.New().String(),
			TradeID:       tradeID,
			PartnerIndex:  partner.Index,
			PartnerWallet: partner.Wallet.Hex(),
			Asset:         req.DestAsset.Hex(),
			Amount:        outcome.FeeAmount.String(),
			Timestamp:     now,
		}
		if err := e.feeStore.Insert(ctx, rec); err != nil {
			e.logger.Warn("fee record failed", slog.String("error", err.Error()))
		}
	}

	if e.bus == nil {
		return
	}
	settled := domain.TradeSettledEvent{
		TradeID:   tradeID,
		SrcAsset:  req.SrcAsset.Hex(),
		AmountIn:  req.AmountIn,
		DestAsset: req.DestAsset.Hex(),
		AmountOut: outcome.NetAmountOut,
		Trader:    req.Trader.Hex(),
		Timestamp: now,
	}
	e.publish(ctx, domain.ChannelTradeSettled, settled)

	// A zero fee produces no fee event, mirroring the skipped transfer.
	if outcome.FeeAmount.Sign() > 0 {
		collected := domain.FeeCollectedEvent{
			TradeID:       tradeID,
			PartnerIndex:  partner.Index,
			Asset:         req.DestAsset.Hex(),
			PartnerWallet: partner.Wallet.Hex(),
			Amount:        outcome.FeeAmount,
			Timestamp:     now,
		}
		e.publish(ctx, domain.ChannelFeeCollected, collected)
	}
}

func (e *Executor) publish(ctx context.Context, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn("event marshal failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.Warn("event publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(ctx, channel, payload); err != nil {
		e.logger.Warn("event stream append failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

func validateSplit(req SplitTradeRequest) error {
	if len(req.RouteIndexes) == 0 {
		return domain.ErrEmptyRouteSet
	}
	if len(req.RouteIndexes) != len(req.LegAmounts) {
		return domain.ErrRouteCountMismatch
	}
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return fmt.Errorf("executor: amount in must be positive: %w", domain.ErrTotalAmountMismatch)
	}
	sum := new(big.Int)
	for _, amt := range req.LegAmounts {
		if amt == nil || amt.Sign() <= 0 {
			return fmt.Errorf("executor: leg amounts must be positive: %w", domain.ErrTotalAmountMismatch)
		}
		sum.Add(sum, amt)
	}
	if sum.Cmp(req.AmountIn) != 0 {
		return fmt.Errorf("executor: legs sum to %s, want %s: %w", sum, req.AmountIn, domain.ErrTotalAmountMismatch)
	}
	return nil
}
