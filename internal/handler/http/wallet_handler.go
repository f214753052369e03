package http

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cypherlabdev/bet-engine-service/internal/ledger"
	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/internal/service"
)

// WalletHandler serves accounts: funds movement from the payment gateway,
// KYC status from the identity provider, and an account's bets.
type WalletHandler struct {
	responder
	ledger *ledger.Ledger
	bets   *service.BetService
}

// NewWalletHandler creates a new wallet HTTP handler
func NewWalletHandler(l *ledger.Ledger, bets *service.BetService, logger zerolog.Logger) *WalletHandler {
	return &WalletHandler{
		responder: responder{logger: logger.With().Str("component", "wallet_handler").Logger()},
		ledger:    l,
		bets:      bets,
	}
}

// RegisterRoutes registers HTTP routes with the provided mux
func (h *WalletHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/accounts", h.handleOpenAccount)
	mux.HandleFunc("GET /api/v1/accounts/{id}", h.handleGetAccount)
	mux.HandleFunc("GET /api/v1/accounts/{id}/snapshot", h.handleSnapshot)
	mux.HandleFunc("GET /api/v1/accounts/{id}/bets", h.handleListBets)
	mux.HandleFunc("GET /api/v1/accounts/{id}/cashouts", h.handleCashOutOffers)
	mux.HandleFunc("GET /api/v1/accounts/{id}/entries", h.handleEntries)
	mux.HandleFunc("POST /api/v1/accounts/{id}/deposit", h.handleDeposit)
	mux.HandleFunc("POST /api/v1/accounts/{id}/withdraw", h.handleWithdraw)
	mux.HandleFunc("POST /api/v1/accounts/{id}/kyc", h.handleKYC)
	mux.HandleFunc("POST /api/v1/accounts/{id}/limits", h.handleLimits)
}

// OpenAccountRequest creates an account
type OpenAccountRequest struct {
	AccountID string `json:"account_id"`
}

// FundsRequest moves money in or out of an account
type FundsRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// KYCRequest records a status from the identity provider
type KYCRequest struct {
	Status models.KYCStatus `json:"status"`
}

// handleOpenAccount handles POST /api/v1/accounts
func (h *WalletHandler) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AccountID == "" {
		h.badRequest(w, "account_id is required")
		return
	}

	acct, err := h.ledger.OpenAccount(r.Context(), req.AccountID)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusCreated, acct)
}

// handleGetAccount handles GET /api/v1/accounts/{id}
func (h *WalletHandler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ledger.Account(r.Context(), r.PathValue("id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, acct)
}

// handleSnapshot handles GET /api/v1/accounts/{id}/snapshot
func (h *WalletHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.bets.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, snap)
}

// handleListBets handles GET /api/v1/accounts/{id}/bets
func (h *WalletHandler) handleListBets(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bets, err := h.bets.ListBets(r.Context(), id)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"account_id": id,
		"count":      len(bets),
		"bets":       bets,
	})
}

// handleCashOutOffers handles GET /api/v1/accounts/{id}/cashouts
func (h *WalletHandler) handleCashOutOffers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	offers, err := h.bets.OpenCashOutOffers(r.Context(), id)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"account_id": id,
		"offers":     offers,
	})
}

// handleEntries handles GET /api/v1/accounts/{id}/entries
func (h *WalletHandler) handleEntries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := h.ledger.Entries(r.Context(), id)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"account_id": id,
		"entries":    entries,
	})
}

// handleDeposit handles POST /api/v1/accounts/{id}/deposit
func (h *WalletHandler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.ledger.Deposit(r.Context(), r.PathValue("id"), req.Amount, req.Reference)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, acct)
}

// handleWithdraw handles POST /api/v1/accounts/{id}/withdraw
func (h *WalletHandler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req FundsRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.ledger.Withdraw(r.Context(), r.PathValue("id"), req.Amount, req.Reference)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, acct)
}

// handleKYC handles POST /api/v1/accounts/{id}/kyc
func (h *WalletHandler) handleKYC(w http.ResponseWriter, r *http.Request) {
	var req KYCRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.ledger.SetKYCStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, acct)
}

// handleLimits handles POST /api/v1/accounts/{id}/limits
func (h *WalletHandler) handleLimits(w http.ResponseWriter, r *http.Request) {
	var req models.Limits
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.ledger.SetLimits(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, acct)
}
