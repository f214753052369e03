package http

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/internal/service"
	"github.com/cypherlabdev/bet-engine-service/internal/slip"
)

// BetHandler serves slips and the bet lifecycle
type BetHandler struct {
	responder
	bets  *service.BetService
	slips *service.SlipService
}

// NewBetHandler creates a new bet HTTP handler
func NewBetHandler(bets *service.BetService, slips *service.SlipService, logger zerolog.Logger) *BetHandler {
	return &BetHandler{
		responder: responder{logger: logger.With().Str("component", "bet_handler").Logger()},
		bets:      bets,
		slips:     slips,
	}
}

// RegisterRoutes registers HTTP routes with the provided mux
func (h *BetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/slips/{session}", h.handleGetSlip)
	mux.HandleFunc("DELETE /api/v1/slips/{session}", h.handleClearSlip)
	mux.HandleFunc("POST /api/v1/slips/{session}/selections", h.handleToggleSelection)
	mux.HandleFunc("DELETE /api/v1/slips/{session}/selections/{selection}", h.handleRemoveSelection)
	mux.HandleFunc("POST /api/v1/slips/{session}/bets", h.handlePlaceBet)

	mux.HandleFunc("GET /api/v1/bets/{id}", h.handleGetBet)
	mux.HandleFunc("GET /api/v1/bets/{id}/cashout", h.handleQuoteCashOut)
	mux.HandleFunc("POST /api/v1/bets/{id}/cashout", h.handleCashOut)
	mux.HandleFunc("POST /api/v1/bets/{id}/settle", h.handleSettle)
}

// SlipResponse represents a slip in API responses
type SlipResponse struct {
	SessionID    string             `json:"session_id"`
	Entries      []models.SlipEntry `json:"entries"`
	CombinedOdds decimal.Decimal    `json:"combined_odds"`
}

func toSlipResponse(sessionID string, s slip.Slip) SlipResponse {
	return SlipResponse{
		SessionID:    sessionID,
		Entries:      s.Entries(),
		CombinedOdds: s.CombinedOdds(),
	}
}

// ToggleSelectionRequest adds or removes a selection
type ToggleSelectionRequest struct {
	SelectionID string `json:"selection_id"`
}

// PlaceBetRequest commits the session's slip
type PlaceBetRequest struct {
	AccountID string          `json:"account_id"`
	Stake     decimal.Decimal `json:"stake"`
}

// SettleRequest carries the settlement authority's outcome
type SettleRequest struct {
	Outcome models.Outcome `json:"outcome"`
}

// CashOutQuoteResponse is the current offer for a pending bet
type CashOutQuoteResponse struct {
	BetID string          `json:"bet_id"`
	Value decimal.Decimal `json:"value"`
}

// handleGetSlip handles GET /api/v1/slips/{session}
func (h *BetHandler) handleGetSlip(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	s, err := h.slips.Get(r.Context(), session)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, toSlipResponse(session, s))
}

// handleClearSlip handles DELETE /api/v1/slips/{session}
func (h *BetHandler) handleClearSlip(w http.ResponseWriter, r *http.Request) {
	if err := h.slips.Clear(r.Context(), r.PathValue("session")); err != nil {
		h.domainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleSelection handles POST /api/v1/slips/{session}/selections
func (h *BetHandler) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	var req ToggleSelectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SelectionID == "" {
		h.badRequest(w, "selection_id is required")
		return
	}

	session := r.PathValue("session")
	s, err := h.slips.Toggle(r.Context(), session, req.SelectionID)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, toSlipResponse(session, s))
}

// handleRemoveSelection handles DELETE /api/v1/slips/{session}/selections/{selection}
func (h *BetHandler) handleRemoveSelection(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	s, err := h.slips.Remove(r.Context(), session, r.PathValue("selection"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, toSlipResponse(session, s))
}

// handlePlaceBet handles POST /api/v1/slips/{session}/bets
func (h *BetHandler) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req PlaceBetRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		h.badRequest(w, "account_id is required")
		return
	}

	bet, err := h.slips.Commit(r.Context(), r.PathValue("session"), req.AccountID, req.Stake)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, bet)
}

// handleGetBet handles GET /api/v1/bets/{id}
func (h *BetHandler) handleGetBet(w http.ResponseWriter, r *http.Request) {
	bet, err := h.bets.GetBet(r.Context(), r.PathValue("id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, bet)
}

// handleQuoteCashOut handles GET /api/v1/bets/{id}/cashout
func (h *BetHandler) handleQuoteCashOut(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	value, err := h.bets.QuoteCashOut(r.Context(), id)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, CashOutQuoteResponse{BetID: id, Value: value})
}

// handleCashOut handles POST /api/v1/bets/{id}/cashout
func (h *BetHandler) handleCashOut(w http.ResponseWriter, r *http.Request) {
	bet, err := h.bets.CashOut(r.Context(), r.PathValue("id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, bet)
}

// handleSettle handles POST /api/v1/bets/{id}/settle
func (h *BetHandler) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if !h.decode(w, r, &req) {
		return
	}
	bet, err := h.bets.Settle(r.Context(), r.PathValue("id"), req.Outcome)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, bet)
}
