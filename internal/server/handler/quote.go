package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/bestrate"
	"github.com/sincore/aggregator/internal/cache/redis"
	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/executor"
	"github.com/sincore/aggregator/internal/registry"
)

// QuoteHandler serves venue quotes and best-rate discovery.
type QuoteHandler struct {
	exec               *executor.Executor
	engine             *bestrate.Engine
	routes             *registry.Routes
	cache              *redis.QuoteCache // optional
	defaultGranularity int
	logger             *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler. defaultGranularity is used when a
// split discovery request does not specify one.
func NewQuoteHandler(exec *executor.Executor, engine *bestrate.Engine, routes *registry.Routes, defaultGranularity int, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		exec:               exec,
		engine:             engine,
		routes:             routes,
		defaultGranularity: defaultGranularity,
		logger:             logger.With(slog.String("handler", "quote")),
	}
}

// SetCache enables caching of single-route discovery results.
func (h *QuoteHandler) SetCache(cache *redis.QuoteCache) {
	h.cache = cache
}

type outcomeResponse struct {
	GrossAmountOut string `json:"gross_amount_out"`
	FeeAmount      string `json:"fee_amount"`
	NetAmountOut   string `json:"net_amount_out"`
}

func toOutcomeResponse(o domain.TradeOutcome) outcomeResponse {
	return outcomeResponse{
		GrossAmountOut: bigString(o.GrossAmountOut),
		FeeAmount:      bigString(o.FeeAmount),
		NetAmountOut:   bigString(o.NetAmountOut),
	}
}

// QuoteOne prices a trade on one route, net of the partner fee.
// GET /api/quote?src=&dest=&amount=&route=&partner=
func (h *QuoteHandler) QuoteOne(w http.ResponseWriter, r *http.Request) {
	src, dest, amount, ok := h.tradeShape(w, r)
	if !ok {
		return
	}
	routeIndex, err := strconv.Atoi(r.URL.Query().Get("route"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "route must be an integer index")
		return
	}
	partnerIndex, _ := strconv.Atoi(r.URL.Query().Get("partner"))

	out, err := h.exec.QuoteOne(r.Context(), src, dest, amount, routeIndex, partnerIndex)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// QuoteSplit prices a split trade, fee applied once on the aggregate.
// GET /api/quote/split?src=&dest=&routes=0,1&amounts=600,400&partner=
func (h *QuoteHandler) QuoteSplit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src, err := parseAddress(q.Get("src"), "src")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dest, err := parseAddress(q.Get("dest"), "dest")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	routeIndexes, err := parseIntList(q.Get("routes"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "routes must be comma-separated integer indexes")
		return
	}
	legAmounts, err := parseAmountList(q.Get("amounts"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	partnerIndex, _ := strconv.Atoi(q.Get("partner"))

	out, err := h.exec.QuoteSplit(r.Context(), src, dest, routeIndexes, legAmounts, partnerIndex)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// BestOne discovers the best single route across all registered venues.
// GET /api/bestrate/one?src=&dest=&amount=
func (h *QuoteHandler) BestOne(w http.ResponseWriter, r *http.Request) {
	src, dest, amount, ok := h.tradeShape(w, r)
	if !ok {
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetOneRoute(r.Context(), src, dest, amount); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"route":      cached.RouteIndex,
				"amount_out": bigString(cached.AmountOut),
				"cached":     true,
			})
			return
		}
	}

	quote, err := h.engine.OneRoute(r.Context(), src, dest, amount, h.allRouteIndexes())
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}

	if h.cache != nil && !quote.Failed() {
		h.cacheOneRoute(r.Context(), src, dest, amount, quote)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"route":      quote.RouteIndex,
		"amount_out": bigString(quote.AmountOut),
		"cached":     false,
	})
}

// BestSplit discovers the best two-route volume split.
// GET /api/bestrate/split?src=&dest=&amount=&granularity=
func (h *QuoteHandler) BestSplit(w http.ResponseWriter, r *http.Request) {
	src, dest, amount, ok := h.tradeShape(w, r)
	if !ok {
		return
	}

	granularity := h.defaultGranularity
	if v := r.URL.Query().Get("granularity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "granularity must be an integer")
			return
		}
		granularity = n
	}

	quote, err := h.engine.SplitTwoRoutes(r.Context(), src, dest, amount, h.allRouteIndexes(), granularity)
	if err != nil {
		h.writeQuoteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"route_a":    quote.RouteIndexA,
		"route_b":    quote.RouteIndexB,
		"fraction_a": quote.FractionA,
		"fraction_b": quote.FractionB,
		"amount_out": bigString(quote.AmountOut),
	})
}

func (h *QuoteHandler) tradeShape(w http.ResponseWriter, r *http.Request) (src, dest common.Address, amount *big.Int, ok bool) {
	q := r.URL.Query()
	src, err := parseAddress(q.Get("src"), "src")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return src, dest, nil, false
	}
	dest, err = parseAddress(q.Get("dest"), "dest")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return src, dest, nil, false
	}
	amount, err = parseAmount(q.Get("amount"), "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return src, dest, nil, false
	}
	return src, dest, amount, true
}

func (h *QuoteHandler) allRouteIndexes() []int {
	n := h.routes.Count()
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}

func (h *QuoteHandler) cacheOneRoute(ctx context.Context, src, dest common.Address, amount *big.Int, quote domain.RouteQuote) {
	if err := h.cache.SetOneRoute(ctx, src, dest, amount, quote); err != nil {
		h.logger.Warn("quote cache write failed", slog.String("error", err.Error()))
	}
}

func (h *QuoteHandler) writeQuoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyRouteSet),
		errors.Is(err, domain.ErrRouteCountMismatch),
		errors.Is(err, domain.ErrInvalidRouteIndex):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBudgetExhausted):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrQuoteFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("quote failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseIntList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseAmountList(s string) ([]*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]*big.Int, 0, len(parts))
	for _, p := range parts {
		v, err := parseAmount(strings.TrimSpace(p), "amounts")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
