// Package bestrate discovers the best single route and the best two-route
// volume split for a trade by quoting candidate venues. Venue failures are
// tolerated: a failed quote becomes the -1 sentinel and never wins.
package bestrate

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/registry"
)

// Quoter prices a trade on one route.
type Quoter interface {
	Quote(ctx context.Context, routeIndex int, srcAsset, destAsset common.Address, amountIn *big.Int) (*big.Int, error)
}

// RegistryQuoter quotes through the route registry's adapters.
type RegistryQuoter struct {
	routes *registry.Routes
}

// NewRegistryQuoter wraps the registry as a Quoter.
func NewRegistryQuoter(routes *registry.Routes) *RegistryQuoter {
	return &RegistryQuoter{routes: routes}
}

// Quote resolves the route and prices the trade on it. An inactive or unknown
// route fails like any other venue failure.
func (q *RegistryQuoter) Quote(ctx context.Context, routeIndex int, srcAsset, destAsset common.Address, amountIn *big.Int) (*big.Int, error) {
	route, err := q.routes.Resolve(routeIndex)
	if err != nil {
		return nil, err
	}
	return route.Adapter.Quote(ctx, srcAsset, destAsset, amountIn)
}

// Engine runs best-rate discovery over a Quoter under a quote-call budget.
// maxQuoteCalls bounds the number of underlying quote invocations per split
// search; zero means unbounded.
type Engine struct {
	quoter        Quoter
	maxQuoteCalls int
	logger        *slog.Logger
}

// NewEngine creates a best-rate engine.
func NewEngine(quoter Quoter, maxQuoteCalls int, logger *slog.Logger) *Engine {
	return &Engine{
		quoter:        quoter,
		maxQuoteCalls: maxQuoteCalls,
		logger:        logger.With(slog.String("component", "bestrate")),
	}
}

// OneRoute quotes every candidate route for the full amount and returns the
// one with the highest output. Ties go to the earlier candidate. When every
// candidate fails, the result carries the first candidate's index and the -1
// sentinel instead of an error.
func (e *Engine) OneRoute(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int, routeIndexes []int) (domain.RouteQuote, error) {
	if len(routeIndexes) == 0 {
		return domain.RouteQuote{}, domain.ErrEmptyRouteSet
	}

	best := domain.RouteQuote{RouteIndex: routeIndexes[0], AmountOut: big.NewInt(-1)}
	for _, idx := range routeIndexes {
		out, err := e.quoter.Quote(ctx, idx, srcAsset, destAsset, amountIn)
		if err != nil || out == nil || out.Sign() < 0 {
			if err != nil {
				e.logger.Debug("quote failed",
					slog.Int("route", idx),
					slog.String("error", err.Error()))
			}
			continue
		}
		if best.Failed() || out.Cmp(best.AmountOut) > 0 {
			best = domain.RouteQuote{RouteIndex: idx, AmountOut: out}
		}
	}
	return best, nil
}

// SplitTwoRoutes searches for the two-route volume split with the highest
// combined output. The split fraction moves in steps of 100/granularity
// percent; granularity must divide 100. The first leg receives
// amountIn * fraction / 100 (floored) and the second leg the exact remainder,
// so the legs always sum to amountIn.
//
// The search quotes each distinct (route, amount) pair at most once. When the
// worst-case number of quote calls exceeds the engine's budget the search is
// refused up front with ErrBudgetExhausted. When every combination fails the
// result carries the -1 sentinel.
func (e *Engine) SplitTwoRoutes(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int, routeIndexes []int, granularity int) (domain.SplitQuote, error) {
	if len(routeIndexes) == 0 {
		return domain.SplitQuote{}, domain.ErrEmptyRouteSet
	}
	if granularity <= 0 || 100%granularity != 0 {
		return domain.SplitQuote{}, fmt.Errorf("bestrate: granularity %d must divide 100", granularity)
	}

	n := len(routeIndexes)
	// Per route: full amount, plus up to granularity-1 distinct amounts as
	// the first leg and as many again as the second leg's remainder.
	worstCase := n * (2*granularity - 1)
	if e.maxQuoteCalls > 0 && worstCase > e.maxQuoteCalls {
		return domain.SplitQuote{}, fmt.Errorf("bestrate: %d candidates need up to %d quotes, budget %d: %w",
			n, worstCase, e.maxQuoteCalls, domain.ErrBudgetExhausted)
	}

	search := &splitSearch{engine: e, memo: make(map[memoKey]*big.Int)}
	step := 100 / granularity

	best := domain.SplitQuote{
		RouteIndexA: routeIndexes[0],
		RouteIndexB: routeIndexes[min(1, n-1)],
		FractionA:   100,
		AmountOut:   big.NewInt(-1),
	}
	failed := func(q domain.SplitQuote) bool { return q.AmountOut.Sign() < 0 }

	// Full allocation on each route first; a split must beat the best single.
	for _, idx := range routeIndexes {
		out, err := search.quote(ctx, idx, srcAsset, destAsset, amountIn)
		if err != nil {
			return domain.SplitQuote{}, err
		}
		if out == nil {
			continue
		}
		if failed(best) || out.Cmp(best.AmountOut) > 0 {
			best = domain.SplitQuote{RouteIndexA: idx, RouteIndexB: idx, FractionA: 100, FractionB: 0, AmountOut: out}
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := 1; k < granularity; k++ {
				fracA := k * step
				amountA := portion(amountIn, fracA)
				amountB := new(big.Int).Sub(amountIn, amountA)

				outA, err := search.quote(ctx, routeIndexes[i], srcAsset, destAsset, amountA)
				if err != nil {
					return domain.SplitQuote{}, err
				}
				if outA == nil {
					continue
				}
				outB, err := search.quote(ctx, routeIndexes[j], srcAsset, destAsset, amountB)
				if err != nil {
					return domain.SplitQuote{}, err
				}
				if outB == nil {
					continue
				}

				total := new(big.Int).Add(outA, outB)
				if failed(best) || total.Cmp(best.AmountOut) > 0 {
					best = domain.SplitQuote{
						RouteIndexA: routeIndexes[i],
						RouteIndexB: routeIndexes[j],
						FractionA:   fracA,
						FractionB:   100 - fracA,
						AmountOut:   total,
					}
				}
			}
		}
	}

	e.logger.Debug("split search done",
		slog.Int("candidates", n),
		slog.Int("quote_calls", search.calls),
		slog.Int("route_a", best.RouteIndexA),
		slog.Int("route_b", best.RouteIndexB),
		slog.Int("fraction_a", best.FractionA))
	return best, nil
}

type memoKey struct {
	route  int
	amount string
}

// splitSearch memoizes quotes per (route, amount) and enforces the call
// budget. A memoized failure is a nil entry; quote returns (nil, nil) for a
// failed venue and an error only when the budget runs out.
type splitSearch struct {
	engine *Engine
	memo   map[memoKey]*big.Int
	calls  int
}

func (s *splitSearch) quote(ctx context.Context, routeIndex int, srcAsset, destAsset common.Address, amount *big.Int) (*big.Int, error) {
	key := memoKey{route: routeIndex, amount: amount.String()}
	if out, ok := s.memo[key]; ok {
		return out, nil
	}

	if s.engine.maxQuoteCalls > 0 && s.calls >= s.engine.maxQuoteCalls {
		return nil, fmt.Errorf("bestrate: after %d quotes: %w", s.calls, domain.ErrBudgetExhausted)
	}
	s.calls++

	out, err := s.engine.quoter.Quote(ctx, routeIndex, srcAsset, destAsset, amount)
	if err != nil || out == nil || out.Sign() < 0 {
		s.memo[key] = nil
		return nil, nil
	}
	s.memo[key] = out
	return out, nil
}

// portion returns amount * pct / 100, floored.
func portion(amount *big.Int, pct int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
	return out.Div(out, big.NewInt(100))
}
