package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sincore/aggregator/internal/domain"
	"github.com/sincore/aggregator/internal/executor"
	"github.com/sincore/aggregator/internal/fee"
	"github.com/sincore/aggregator/internal/registry"
	"github.com/sincore/aggregator/internal/venue/httpvenue"
)

// AdminHandler serves the administrative boundary: route and partner
// management, the loyalty exemption threshold, and custody sweeps. All admin
// routes sit behind the API-key middleware.
type AdminHandler struct {
	routes    *registry.Routes
	partners  *registry.Partners
	exemption *fee.Exemption
	exec      *executor.Executor
	operator  common.Address
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler. operator is the address custody
// sweeps are issued as.
func NewAdminHandler(
	routes *registry.Routes,
	partners *registry.Partners,
	exemption *fee.Exemption,
	exec *executor.Executor,
	operator common.Address,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		routes:    routes,
		partners:  partners,
		exemption: exemption,
		exec:      exec,
		operator:  operator,
		logger:    logger.With(slog.String("handler", "admin")),
	}
}

type addRouteRequest struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// AddRoute registers a new HTTP venue as a trading route.
// POST /api/admin/routes
func (h *AdminHandler) AddRoute(w http.ResponseWriter, r *http.Request) {
	var body addRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Name == "" || body.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "name and base_url are required")
		return
	}

	index := h.routes.Add(body.Name, httpvenue.NewClient(body.Name, body.BaseURL, body.APIKey))
	h.logger.Info("route added", slog.Int("index", index), slog.String("name", body.Name))
	writeJSON(w, http.StatusCreated, map[string]any{"index": index})
}

type setRouteActiveRequest struct {
	Active bool `json:"active"`
}

// SetRouteActive enables or disables a route.
// PATCH /api/admin/routes/{index}
func (h *AdminHandler) SetRouteActive(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	var body setRouteActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.routes.SetActive(index, body.Active); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": index, "active": body.Active})
}

type partnerRequest struct {
	Wallet string `json:"wallet"`
	FeeBps int    `json:"fee_bps"`
	Name   string `json:"name"`
}

// AddPartner appends a partner fee tier.
// POST /api/admin/partners
func (h *AdminHandler) AddPartner(w http.ResponseWriter, r *http.Request) {
	var body partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	wallet, err := parseAddress(body.Wallet, "wallet")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	index, err := h.partners.Add(wallet, body.FeeBps, body.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Info("partner added", slog.Int("index", index), slog.Int("fee_bps", body.FeeBps))
	writeJSON(w, http.StatusCreated, map[string]any{"index": index})
}

// UpdatePartner replaces a partner fee tier.
// PUT /api/admin/partners/{index}
func (h *AdminHandler) UpdatePartner(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	var body partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	wallet, err := parseAddress(body.Wallet, "wallet")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.partners.Update(index, wallet, body.FeeBps, body.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"index": index})
}

type loyaltyRequest struct {
	EligibleAmount string `json:"eligible_amount"`
}

// SetLoyaltyThreshold updates the loyalty holding threshold for the fee
// exemption. An empty amount disables the exemption.
// PUT /api/admin/loyalty
func (h *AdminHandler) SetLoyaltyThreshold(w http.ResponseWriter, r *http.Request) {
	var body loyaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if body.EligibleAmount == "" {
		h.exemption.SetEligibleAmount(nil)
		writeJSON(w, http.StatusOK, map[string]any{"eligible_amount": nil})
		return
	}

	amount, err := parseAmount(body.EligibleAmount, "eligible_amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.exemption.SetEligibleAmount(amount)
	h.logger.Info("loyalty threshold updated", slog.String("eligible_amount", amount.String()))
	writeJSON(w, http.StatusOK, map[string]any{"eligible_amount": amount.String()})
}

type sweepRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"` // empty sweeps the full balance
}

// Sweep moves custody funds to a destination address, issued as the
// operator.
// POST /api/admin/sweep
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var body sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	asset, err := parseAddress(body.Asset, "asset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress(body.To, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var amount *big.Int
	if body.Amount != "" {
		if amount, err = parseAmount(body.Amount, "amount"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.exec.Sweep(r.Context(), h.operator, asset, to, amount); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotOwner):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance),
			errors.Is(err, domain.ErrInvalidDestination):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("sweep failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset": asset.Hex(), "to": to.Hex()})
}
