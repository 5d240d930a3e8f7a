package handler

import (
	"log/slog"
	"net/http"

	"github.com/openpredict/predictiondao/internal/service"
)

// ProposalHandler serves dispute-governance endpoints.
type ProposalHandler struct {
	svc    *service.MarketService
	logger *slog.Logger
}

// NewProposalHandler creates a ProposalHandler.
func NewProposalHandler(svc *service.MarketService, logger *slog.Logger) *ProposalHandler {
	return &ProposalHandler{svc: svc, logger: logger}
}

// createDisputeRequest is the body of POST /api/markets/{id}/disputes.
type createDisputeRequest struct {
	Description string `json:"description"`
	Outcome     bool   `json:"outcome"`
}

// CreateDispute opens a dispute proposal against a resolved market. The
// proposed outcome must disagree with the posted resolution.
// POST /api/markets/{id}/disputes
func (h *ProposalHandler) CreateDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	marketID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createDisputeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.svc.CreateDispute(r.Context(), caller, marketID, req.Description, req.Outcome)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// ListProposals returns the dispute proposals raised against a market.
// GET /api/markets/{id}/proposals
func (h *ProposalHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": marketID,
		"proposals": h.svc.ListProposals(r.Context(), marketID),
	})
}

// GetProposal returns a single dispute proposal.
// GET /api/proposals/{id}
func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.svc.GetProposal(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// voteRequest is the body of POST /api/proposals/{id}/votes.
type voteRequest struct {
	Support bool   `json:"support"`
	Amount  string `json:"amount"`
}

// Vote casts part of the caller's snapshot voting power on a proposal.
// POST /api/proposals/{id}/votes
func (h *ProposalHandler) Vote(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Vote(r.Context(), caller, id, req.Support, amount); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"proposal_id": id, "support": req.Support, "amount": amount.String()})
}

// ExecuteProposal tallies a finished dispute and settles the resolver bond.
// Restricted to the owner and authorized executors.
// POST /api/proposals/{id}/execute
func (h *ProposalHandler) ExecuteProposal(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ExecuteProposal(r.Context(), caller, id); err != nil {
		writeEngineError(w, err)
		return
	}

	p, err := h.svc.GetProposal(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetUsedPower reports how much of an address's snapshot power has been
// spent on a proposal.
// GET /api/proposals/{id}/power/{address}
func (h *ProposalHandler) GetUsedPower(w http.ResponseWriter, r *http.Request) {
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

	used, err := h.svc.Engine().UsedVotingPower(id, addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	p, err := h.svc.GetProposal(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	total := h.svc.Engine().Gov().PastVotes(addr, p.SnapshotBlock)

	writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": id,
		"address":     addr.Hex(),
		"used":        used.String(),
		"total":       total.String(),
	})
}
