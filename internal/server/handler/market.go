package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/service"
)

// MarketHandler serves market lifecycle and settlement endpoints.
type MarketHandler struct {
	svc    *service.MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *service.MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logger}
}

// marketView is a market plus its derived fields.
type marketView struct {
	*domain.Market
	Status    domain.MarketStatus `json:"status"`
	TotalPool string              `json:"total_pool"`
}

func (h *MarketHandler) view(m *domain.Market) marketView {
	status, err := h.svc.Engine().MarketStatus(m.ID)
	if err != nil {
		status = domain.MarketStatusOpen
	}
	return marketView{
		Market:    m,
		Status:    status,
		TotalPool: m.TotalPool().String(),
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   uint64       `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets in creation order with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets := h.svc.ListMarkets(r.Context(), opts)
	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, h.view(m))
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   h.svc.Engine().MarketsCount(),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market with derived status.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.GetMarket(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.view(m))
}

// createMarketRequest is the body of POST /api/markets.
type createMarketRequest struct {
	Question        string `json:"question"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// CreateMarket opens a new market, pulling the creator bond from the
// caller's governance allowance.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.svc.CreateMarket(r.Context(), caller, req.Question, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.view(m))
}

// placeBetRequest is the body of POST /api/markets/{id}/bets.
type placeBetRequest struct {
	Yes    bool   `json:"yes"`
	Amount string `json:"amount"`
}

// PlaceBet stakes native funds on one side of an open market.
// POST /api/markets/{id}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.PlaceBet(r.Context(), caller, id, req.Yes, amount); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "yes": req.Yes, "amount": amount.String()})
}

// resolveRequest is the body of POST /api/markets/{id}/resolve.
type resolveRequest struct {
	Outcome bool `json:"outcome"`
}

// ResolveMarket posts an outcome once betting has ended. The resolver bond
// is pulled from the caller's governance allowance.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.svc.ResolveMarket(r.Context(), caller, id, req.Outcome); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "outcome": req.Outcome})
}

// FinalizeResolve settles resolver reward and creator bond after the
// dispute window passes undisputed. Permissionless.
// POST /api/markets/{id}/finalize
func (h *MarketHandler) FinalizeResolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.FinalizeResolve(r.Context(), caller, id); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "finalized": true})
}

// WithdrawWinnings pays out the caller's settled stake.
// POST /api/markets/{id}/withdraw
func (h *MarketHandler) WithdrawWinnings(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.svc.WithdrawWinnings(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "amount": amount.String()})
}

// GetBet returns an address's standing stakes on a market.
// GET /api/markets/{id}/bets/{address}
func (h *MarketHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	yes, no, err := h.svc.Engine().BetOf(id, addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	canWithdraw, _ := h.svc.Engine().CanWithdraw(id, addr)

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":    id,
		"address":      addr.Hex(),
		"yes":          yes.String(),
		"no":           no.String(),
		"can_withdraw": canWithdraw,
	})
}

// GetResolverStatus reports the resolver, bond, and pending reward.
// GET /api/markets/{id}/resolver
func (h *MarketHandler) GetResolverStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.svc.Engine().ResolverStatus(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// ListMarketEvents pages through a market's event history.
// GET /api/markets/{id}/events
func (h *MarketHandler) ListMarketEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := parseListOpts(r)

	events, err := h.svc.MarketEvents(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market events failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "events": events})
}

// ListRecentEvents returns the newest events across all markets.
// GET /api/events/recent?limit=50
func (h *MarketHandler) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.svc.RecentEvents(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list recent events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
