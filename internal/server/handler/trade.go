package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/executor"
)

// TradeHandler serves trade settlement and history endpoints.
type TradeHandler struct {
	exec   *executor.Executor
	trades domain.SettledTradeStore // optional
	fees   domain.FeeRecordStore    // optional
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler. The stores may be nil when the
// service runs without persistence; history endpoints then return 404.
func NewTradeHandler(exec *executor.Executor, trades domain.SettledTradeStore, fees domain.FeeRecordStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		exec:   exec,
		trades: trades,
		fees:   fees,
		logger: logger.With(slog.String("handler", "trade")),
	}
}

type tradeRequest struct {
	Trader       string `json:"trader"`
	SrcAsset     string `json:"src_asset"`
	DestAsset    string `json:"dest_asset"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	Route        int    `json:"route"`
	Partner      int    `json:"partner"`
}

type splitTradeRequest struct {
	Trader       string   `json:"trader"`
	SrcAsset     string   `json:"src_asset"`
	DestAsset    string   `json:"dest_asset"`
	AmountIn     string   `json:"amount_in"`
	MinAmountOut string   `json:"min_amount_out"`
	Routes       []int    `json:"routes"`
	Amounts      []string `json:"amounts"`
	Partner      int      `json:"partner"`
}

// Trade settles a single-route trade.
// POST /api/trades
func (h *TradeHandler) Trade(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := h.buildTradeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.exec.Trade(r.Context(), req)
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// SplitTrade settles a trade split across multiple routes.
// POST /api/trades/split
func (h *TradeHandler) SplitTrade(w http.ResponseWriter, r *http.Request) {
	var body splitTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := h.buildSplitRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.exec.SplitTrades(r.Context(), req)
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// ListTrades returns a trader's settled trades.
// GET /api/trades?trader=&limit=&offset=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusNotFound, "trade history is not enabled")
		return
	}

	trader, err := parseAddress(r.URL.Query().Get("trader"), "trader")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := h.trades.ListByTrader(r.Context(), trader.Hex(), parseListOpts(r))
	if err != nil {
		h.logger.Error("list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// ListFees returns a partner's collected fees.
// GET /api/fees?partner=&limit=&offset=
func (h *TradeHandler) ListFees(w http.ResponseWriter, r *http.Request) {
	if h.fees == nil {
		writeError(w, http.StatusNotFound, "fee history is not enabled")
		return
	}

	partnerIndex, err := strconv.Atoi(r.URL.Query().Get("partner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "partner must be an integer index")
		return
	}

	fees, err := h.fees.ListByPartner(r.Context(), partnerIndex, parseListOpts(r))
	if err != nil {
		h.logger.Error("list fees failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees": fees})
}

func (h *TradeHandler) buildTradeRequest(body tradeRequest) (executor.TradeRequest, error) {
	var req executor.TradeRequest
	var err error

	if req.Trader, err = parseAddress(body.Trader, "trader"); err != nil {
		return req, err
	}
	if req.SrcAsset, err = parseAddress(body.SrcAsset, "src_asset"); err != nil {
		return req, err
	}
	if req.DestAsset, err = parseAddress(body.DestAsset, "dest_asset"); err != nil {
		return req, err
	}
	if req.AmountIn, err = parseAmount(body.AmountIn, "amount_in"); err != nil {
		return req, err
	}
	if req.MinAmountOut, err = parseAmount(body.MinAmountOut, "min_amount_out"); err != nil {
		return req, err
	}
	req.RouteIndex = body.Route
	req.PartnerIndex = body.Partner
	return req, nil
}

func (h *TradeHandler) buildSplitRequest(body splitTradeRequest) (executor.SplitTradeRequest, error) {
	var req executor.SplitTradeRequest
	var err error

	if req.Trader, err = parseAddress(body.Trader, "trader"); err != nil {
		return req, err
	}
	if req.SrcAsset, err = parseAddress(body.SrcAsset, "src_asset"); err != nil {
		return req, err
	}
	if req.DestAsset, err = parseAddress(body.DestAsset, "dest_asset"); err != nil {
		return req, err
	}
	if req.AmountIn, err = parseAmount(body.AmountIn, "amount_in"); err != nil {
		return req, err
	}
	if req.MinAmountOut, err = parseAmount(body.MinAmountOut, "min_amount_out"); err != nil {
		return req, err
	}
	req.RouteIndexes = body.Routes
	for _, a := range body.Amounts {
		amt, err := parseAmount(a, "amounts")
		if err != nil {
			return req, err
		}
		req.LegAmounts = append(req.LegAmounts, amt)
	}
	req.PartnerIndex = body.Partner
	return req, nil
}

func (h *TradeHandler) writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyRouteSet),
		errors.Is(err, domain.ErrRouteCountMismatch),
		errors.Is(err, domain.ErrTotalAmountMismatch),
		errors.Is(err, domain.ErrInvalidRouteIndex):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSlippageExceeded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrQuoteFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("trade failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
