package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/registry"
	"github.com/sincore/aggregator/internal/vault"
)

var (
	owner         = common.HexToAddress("0x0000000000000000000000000000000000000001")
	custodyAddr   = common.HexToAddress("0x0000000000000000000000000000000000000c57")
	reserveWallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	acmeWallet    = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	trader        = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	tokenA        = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB        = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// rateAdapter converts amountIn at a fixed num/den rate.
type rateAdapter struct {
	num, den int64
}

func (a rateAdapter) Quote(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	out := new(big.Int).Mul(amountIn, big.NewInt(a.num))
	return out.Div(out, big.NewInt(a.den)), nil
}

func (a rateAdapter) Execute(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	return a.Quote(ctx, src, dest, amountIn)
}

type failAdapter struct{}

func (failAdapter) Quote(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	return nil, errors.New("venue unreachable")
}

func (failAdapter) Execute(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	return nil, errors.New("venue unreachable")
}

type exemptStub struct {
	exempt bool
	err    error
}

func (s exemptStub) IsFeeExempt(ctx context.Context, trader common.Address) (bool, error) {
	return s.exempt, s.err
}

type memBus struct {
	published map[string][][]byte
	appended  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte), appended: make(map[string][][]byte)}
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.appended[stream] = append(b.appended[stream], payload)
	return nil
}

type memTradeStore struct {
	trades []domain.SettledTrade
}

func (s *memTradeStore) Insert(ctx context.Context, trade domain.SettledTrade) error {
	s.trades = append(s.trades, trade)
	return nil
}

func (s *memTradeStore) ListByTrader(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.SettledTrade, error) {
	return s.trades, nil
}

func (s *memTradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettledTrade, error) {
	return s.trades, nil
}

func (s *memTradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type memFeeStore struct {
	fees []domain.FeeRecord
}

func (s *memFeeStore) Insert(ctx context.Context, rec domain.FeeRecord) error {
	s.fees = append(s.fees, rec)
	return nil
}

func (s *memFeeStore) ListByPartner(ctx context.Context, partnerIndex int, opts domain.ListOpts) ([]domain.FeeRecord, error) {
	return s.fees, nil
}

type fixture struct {
	exec    *Executor
	routes  *registry.Routes
	ledger  *vault.Ledger
	bus     *memBus
	trades  *memTradeStore
	fees    *memFeeStore
}

func newFixture(t *testing.T, exempt bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	routes := registry.NewRoutes()
	routes.Add("uniswap", rateAdapter{num: 2, den: 1})
	routes.Add("sushiswap", rateAdapter{num: 3, den: 2})

	partners, err := registry.NewPartners(reserveWallet, 10, "sincore")
	require.NoError(t, err)
	_, err = partners.Add(acmeWallet, 25, "acme")
	require.NoError(t, err)

	ledger := vault.NewLedger(custodyAddr, logger)
	ledger.Credit(trader, tokenA, big.NewInt(1_000_000))

	f := &fixture{
		routes: routes,
		ledger: ledger,
		bus:    newMemBus(),
		trades: &memTradeStore{},
		fees:   &memFeeStore{},
	}
	f.exec = NewExecutor(routes, partners, exemptStub{exempt: exempt}, ledger, owner, logger)
	f.exec.SetRecording(f.trades, f.fees)
	f.exec.SetEventBus(f.bus)
	return f
}

func (f *fixture) balance(t *testing.T, holder, asset common.Address) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), holder, asset)
	require.NoError(t, err)
	return bal.Int64()
}

func TestTradeSettlesWithFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	// 1000 in at 2x gives 2000 gross; 10 bps fee is 2; trader nets 1998.
	out, err := f.exec.Trade(ctx, TradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(1000),
		MinAmountOut: big.NewInt(1998),
		RouteIndex:   0,
		PartnerIndex: 0,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2000), out.GrossAmountOut.Int64())
	assert.Equal(t, int64(2), out.FeeAmount.Int64())
	assert.Equal(t, int64(1998), out.NetAmountOut.Int64())

	assert.Equal(t, int64(999_000), f.balance(t, trader, tokenA))
	assert.Equal(t, int64(1998), f.balance(t, trader, tokenB))
	assert.Equal(t, int64(2), f.balance(t, reserveWallet, tokenB))
	assert.Equal(t, int64(0), f.balance(t, custodyAddr, tokenB), "custody retains nothing")
}

func TestTradeZeroFeeSkipsFeeTransferAndEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	// 100 in at 2x gives 200 gross; floor(200*10/10000) = 0.
	out, err := f.exec.Trade(ctx, TradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(100),
		MinAmountOut: big.NewInt(0),
		RouteIndex:   0,
		PartnerIndex: 0,
	})
	require.NoError(t, err)
	assert.Zero(t, out.FeeAmount.Sign())
	assert.Equal(t, int64(200), out.NetAmountOut.Int64())

	assert.Equal(t, int64(0), f.balance(t, reserveWallet, tokenB))
	assert.Len(t, f.bus.published[domain.ChannelTradeSettled], 1)
	assert.Empty(t, f.bus.published[domain.ChannelFeeCollected])
	assert.Empty(t, f.fees.fees)
}

func TestTradeUnknownPartnerFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.exec.Trade(ctx, TradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(10_000),
		MinAmountOut: big.NewInt(0),
		RouteIndex:   0,
		PartnerIndex: 2501,
	})
	require.NoError(t, err)

	// The default partner at index 0 is billed and reported.
	assert.Equal(t, int64(20), f.balance(t, reserveWallet, tokenB))
	assert.Equal(t, int64(0), f.balance(t, acmeWallet, tokenB))

	require.Len(t, f.bus.published[domain.ChannelFeeCollected], 1)
	var ev domain.FeeCollectedEvent
	require.NoError(t, json.Unmarshal(f.bus.published[domain.ChannelFeeCollected][0], &ev))
	assert.Equal(t, 0, ev.PartnerIndex)
	assert.Equal(t, reserveWallet.Hex(), ev.PartnerWallet)
}

func TestTradeExemptTraderPaysNoFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	out, err := f.exec.Trade(ctx, TradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(10_000),
		MinAmountOut: big.NewInt(20_000),
		RouteIndex:   0,
		PartnerIndex: 1,
	})
	require.NoError(t, err)
	assert.Zero(t, out.FeeAmount.Sign())
	assert.Equal(t, int64(20_000), out.NetAmountOut.Int64())
	assert.Equal(t, int64(0), f.balance(t, acmeWallet, tokenB))
}

func TestTradeSlippageRejectedWithoutMovingFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	// Net is 1998 after fee; demanding the gross 2000 must fail.
	_, err := f.exec.Trade(ctx, TradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(1000),
		MinAmountOut: big.NewInt(2000),
		RouteIndex:   0,
		PartnerIndex: 0,
	})
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)

	assert.Equal(t, int64(1_000_000), f.balance(t, trader, tokenA))
	assert.Equal(t, int64(0), f.balance(t, trader, tokenB))
	assert.Empty(t, f.bus.published[domain.ChannelTradeSettled])
	assert.Empty(t, f.trades.trades)
}

func TestTradeInactiveRouteRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	require.NoError(t, f.routes.SetActive(0, false))

	_, err := f.exec.Trade(ctx, TradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(1000),
		MinAmountOut: big.NewInt(0),
		RouteIndex:   0,
		PartnerIndex: 0,
	})
	require.ErrorIs(t, err, domain.ErrInvalidRouteIndex)
}

func TestSplitTradesFeeOnAggregate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	// Leg 0: 600 at 2x = 1200. Leg 1: 400 at 1.5x = 600. Gross 1800.
	// Fee once on aggregate: floor(1800*25/10000) = 4; net 1796.
	out, err := f.exec.SplitTrades(ctx, SplitTradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(1000),
		MinAmountOut: big.NewInt(1796),
		RouteIndexes: []int{0, 1},
		LegAmounts:   []*big.Int{big.NewInt(600), big.NewInt(400)},
		PartnerIndex: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1800), out.GrossAmountOut.Int64())
	assert.Equal(t, int64(4), out.FeeAmount.Int64())
	assert.Equal(t, int64(1796), out.NetAmountOut.Int64())
	assert.Equal(t, int64(4), f.balance(t, acmeWallet, tokenB))
	assert.Equal(t, int64(1796), f.balance(t, trader, tokenB))

	require.Len(t, f.trades.trades, 1)
	assert.Equal(t, []int32{0, 1}, f.trades.trades[0].RouteIndexes)
	assert.Equal(t, 1, f.trades.trades[0].PartnerIndex)
}

func TestSplitTradesValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	base := SplitTradeRequest{
		Trader:    trader,
		SrcAsset:  tokenA,
		DestAsset: tokenB,
		AmountIn:  big.NewInt(1000),
	}

	empty := base
	_, err := f.exec.SplitTrades(ctx, empty)
	require.ErrorIs(t, err, domain.ErrEmptyRouteSet)

	mismatch := base
	mismatch.RouteIndexes = []int{0, 1}
	mismatch.LegAmounts = []*big.Int{big.NewInt(1000)}
	_, err = f.exec.SplitTrades(ctx, mismatch)
	require.ErrorIs(t, err, domain.ErrRouteCountMismatch)

	badSum := base
	badSum.RouteIndexes = []int{0, 1}
	badSum.LegAmounts = []*big.Int{big.NewInt(600), big.NewInt(500)}
	_, err = f.exec.SplitTrades(ctx, badSum)
	require.ErrorIs(t, err, domain.ErrTotalAmountMismatch)

	assert.Equal(t, int64(1_000_000), f.balance(t, trader, tokenA))
}

func TestSplitTradesLegFailureAbortsAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.routes.Add("broken", failAdapter{})

	_, err := f.exec.SplitTrades(ctx, SplitTradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(1000),
		MinAmountOut: big.NewInt(0),
		RouteIndexes: []int{0, 2},
		LegAmounts:   []*big.Int{big.NewInt(500), big.NewInt(500)},
		PartnerIndex: 0,
	})
	require.ErrorIs(t, err, domain.ErrQuoteFailed)

	assert.Equal(t, int64(1_000_000), f.balance(t, trader, tokenA))
	assert.Equal(t, int64(0), f.balance(t, trader, tokenB))
	assert.Empty(t, f.trades.trades)
}

func TestQuoteOneIsNetOfFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	out, err := f.exec.QuoteOne(ctx, tokenA, tokenB, big.NewInt(1000), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), out.GrossAmountOut.Int64())
	assert.Equal(t, int64(1998), out.NetAmountOut.Int64())

	// Quoting moves no funds.
	assert.Equal(t, int64(1_000_000), f.balance(t, trader, tokenA))
}

func TestQuoteSplitAggregatesBeforeFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	out, err := f.exec.QuoteSplit(ctx, tokenA, tokenB,
		[]int{0, 1}, []*big.Int{big.NewInt(600), big.NewInt(400)}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), out.GrossAmountOut.Int64())
	assert.Equal(t, int64(4), out.FeeAmount.Int64())
	assert.Equal(t, int64(1796), out.NetAmountOut.Int64())
}

func TestSweepOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.ledger.Credit(custodyAddr, tokenB, big.NewInt(500))

	err := f.exec.Sweep(ctx, trader, tokenB, trader, big.NewInt(500))
	require.ErrorIs(t, err, domain.ErrNotOwner)
	assert.Equal(t, int64(500), f.balance(t, custodyAddr, tokenB))

	require.NoError(t, f.exec.Sweep(ctx, owner, tokenB, acmeWallet, nil))
	assert.Equal(t, int64(0), f.balance(t, custodyAddr, tokenB))
	assert.Equal(t, int64(500), f.balance(t, acmeWallet, tokenB))
}

func TestTradeEmitsSettlementEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.exec.Trade(ctx, TradeRequest{
		Trader:       trader,
		SrcAsset:     tokenA,
		DestAsset:    tokenB,
		AmountIn:     big.NewInt(10_000),
		MinAmountOut: big.NewInt(0),
		RouteIndex:   0,
		PartnerIndex: 0,
	})
	require.NoError(t, err)

	require.Len(t, f.bus.published[domain.ChannelTradeSettled], 1)
	var settled domain.TradeSettledEvent
	require.NoError(t, json.Unmarshal(f.bus.published[domain.ChannelTradeSettled][0], &settled))
	assert.Equal(t, trader.Hex(), settled.Trader)
	assert.Equal(t, int64(10_000), settled.AmountIn.Int64())
	assert.Equal(t, int64(19_980), settled.AmountOut.Int64())
	assert.NotEmpty(t, settled.TradeID)

	// Durable stream mirrors the pub/sub channel.
	assert.Len(t, f.bus.appended[domain.ChannelTradeSettled], 1)
	assert.Len(t, f.bus.appended[domain.ChannelFeeCollected], 1)
}
