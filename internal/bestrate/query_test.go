package bestrate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/registry"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// stubQuoter prices each route with its own function and records every
// underlying call.
type stubQuoter struct {
	fns   map[int]func(amountIn *big.Int) (*big.Int, error)
	calls int
	seen  map[int][]string
}

func newStubQuoter() *stubQuoter {
	return &stubQuoter{
		fns:  make(map[int]func(*big.Int) (*big.Int, error)),
		seen: make(map[int][]string),
	}
}

func (q *stubQuoter) Quote(ctx context.Context, routeIndex int, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	q.calls++
	q.seen[routeIndex] = append(q.seen[routeIndex], amountIn.String())
	fn, ok := q.fns[routeIndex]
	if !ok {
		return nil, errors.New("unknown route")
	}
	return fn(amountIn)
}

func flatRate(out int64) func(*big.Int) (*big.Int, error) {
	return func(*big.Int) (*big.Int, error) { return big.NewInt(out), nil }
}

func failing() func(*big.Int) (*big.Int, error) {
	return func(*big.Int) (*big.Int, error) { return nil, errors.New("venue unreachable") }
}

// impact models quadratic price impact: out = x - x*x/10000. Splitting the
// volume across two such venues beats sending it all through one.
func impact() func(*big.Int) (*big.Int, error) {
	return func(x *big.Int) (*big.Int, error) {
		penalty := new(big.Int).Mul(x, x)
		penalty.Div(penalty, big.NewInt(10000))
		return new(big.Int).Sub(x, penalty), nil
	}
}

func newTestEngine(q Quoter, budget int) *Engine {
	return NewEngine(q, budget, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOneRoutePicksHighestOutput(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = flatRate(900)
	q.fns[1] = flatRate(1200)
	q.fns[2] = flatRate(1100)

	e := newTestEngine(q, 0)
	got, err := e.OneRoute(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, got.RouteIndex)
	assert.Equal(t, int64(1200), got.AmountOut.Int64())
	assert.False(t, got.Failed())
}

func TestOneRouteTieGoesToEarlierCandidate(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = flatRate(1000)
	q.fns[1] = flatRate(1000)

	e := newTestEngine(q, 0)
	got, err := e.OneRoute(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0, got.RouteIndex)
}

func TestOneRouteToleratesVenueFailures(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = failing()
	q.fns[1] = flatRate(800)
	q.fns[2] = failing()

	e := newTestEngine(q, 0)
	got, err := e.OneRoute(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 1, got.RouteIndex)
	assert.Equal(t, int64(800), got.AmountOut.Int64())
	assert.Equal(t, 3, q.calls, "every candidate is still quoted")
}

func TestOneRouteAllFailuresYieldsSentinel(t *testing.T) {
	q := newStubQuoter()
	q.fns[3] = failing()
	q.fns[7] = failing()

	e := newTestEngine(q, 0)
	got, err := e.OneRoute(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{3, 7})
	require.NoError(t, err)
	assert.True(t, got.Failed())
	assert.Equal(t, 3, got.RouteIndex)
	assert.Equal(t, int64(-1), got.AmountOut.Int64())
}

func TestOneRouteEmptyCandidates(t *testing.T) {
	e := newTestEngine(newStubQuoter(), 0)
	_, err := e.OneRoute(context.Background(), tokenA, tokenB, big.NewInt(1000), nil)
	require.ErrorIs(t, err, domain.ErrEmptyRouteSet)
}

func TestSplitTwoRoutesFindsBetterSplit(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = impact()
	q.fns[1] = impact()

	// Single route: 1000 - 100 = 900. Even 50/50: (500-25)*2 = 950.
	e := newTestEngine(q, 0)
	got, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 4)
	require.NoError(t, err)

	assert.Equal(t, 0, got.RouteIndexA)
	assert.Equal(t, 1, got.RouteIndexB)
	assert.Equal(t, 50, got.FractionA)
	assert.Equal(t, 50, got.FractionB)
	assert.Equal(t, int64(950), got.AmountOut.Int64())
}

func TestSplitTwoRoutesSingleRouteWinsWhenSplitIsWorse(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = impact()
	q.fns[1] = flatRate(0)

	e := newTestEngine(q, 0)
	got, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 4)
	require.NoError(t, err)

	assert.Equal(t, 0, got.RouteIndexA)
	assert.Equal(t, 0, got.RouteIndexB)
	assert.Equal(t, 100, got.FractionA)
	assert.Equal(t, 0, got.FractionB)
	assert.Equal(t, int64(900), got.AmountOut.Int64())
}

func TestSplitTwoRoutesSkipsFailingVenue(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = impact()
	q.fns[1] = failing()

	e := newTestEngine(q, 0)
	got, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RouteIndexA)
	assert.Equal(t, 100, got.FractionA)
	assert.Equal(t, int64(900), got.AmountOut.Int64())
}

func TestSplitTwoRoutesAllFailuresYieldsSentinel(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = failing()
	q.fns[1] = failing()

	e := newTestEngine(q, 0)
	got, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got.AmountOut.Int64())
	assert.Equal(t, 0, got.RouteIndexA)
	assert.Equal(t, 1, got.RouteIndexB)
}

func TestSplitTwoRoutesLegsConserveInput(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = impact()
	q.fns[1] = impact()

	// 1001 at 50% floors the first leg to 500; the second leg is the exact
	// remainder 501, never 500 twice.
	e := newTestEngine(q, 0)
	_, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1001), []int{0, 1}, 2)
	require.NoError(t, err)

	assert.Contains(t, q.seen[0], "500")
	assert.Contains(t, q.seen[1], "501")
	assert.NotContains(t, q.seen[1], "500")
}

func TestSplitTwoRoutesBudget(t *testing.T) {
	q := newStubQuoter()
	q.fns[0] = impact()
	q.fns[1] = impact()

	// Worst case for 2 routes at granularity 4 is 2*(2*4-1) = 14 calls.
	e := newTestEngine(q, 13)
	_, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 4)
	require.ErrorIs(t, err, domain.ErrBudgetExhausted)
	assert.Zero(t, q.calls, "refused before quoting anything")

	e = newTestEngine(q, 14)
	got, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(950), got.AmountOut.Int64())
	assert.LessOrEqual(t, q.calls, 14)
}

func TestSplitTwoRoutesGranularityMustDivide100(t *testing.T) {
	e := newTestEngine(newStubQuoter(), 0)
	_, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 3)
	require.Error(t, err)

	_, err = e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1}, 0)
	require.Error(t, err)
}

func TestSplitTwoRoutesEmptyCandidates(t *testing.T) {
	e := newTestEngine(newStubQuoter(), 0)
	_, err := e.SplitTwoRoutes(context.Background(), tokenA, tokenB, big.NewInt(1000), nil, 2)
	require.ErrorIs(t, err, domain.ErrEmptyRouteSet)
}

type quoteOnlyAdapter struct {
	out *big.Int
}

func (a quoteOnlyAdapter) Quote(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	return new(big.Int).Set(a.out), nil
}

func (a quoteOnlyAdapter) Execute(ctx context.Context, src, dest common.Address, amountIn *big.Int) (*big.Int, error) {
	return new(big.Int).Set(a.out), nil
}

func TestRegistryQuoterTreatsInactiveRouteAsFailure(t *testing.T) {
	routes := registry.NewRoutes()
	routes.Add("uniswap", quoteOnlyAdapter{out: big.NewInt(500)})
	routes.Add("sushiswap", quoteOnlyAdapter{out: big.NewInt(700)})
	require.NoError(t, routes.SetActive(1, false))

	e := newTestEngine(NewRegistryQuoter(routes), 0)
	got, err := e.OneRoute(context.Background(), tokenA, tokenB, big.NewInt(1000), []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0, got.RouteIndex)
	assert.Equal(t, int64(500), got.AmountOut.Int64())
}
