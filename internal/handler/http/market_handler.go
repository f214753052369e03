package http

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-engine-service/internal/models"
	"github.com/cypherlabdev/bet-engine-service/internal/service"
)

// QuoteBook lists the live quotes of a market
type QuoteBook interface {
	MarketQuotes(marketID string) []models.MarketQuote
}

// QuoteMirror is the shared copy of quotes written by whichever instance
// consumes the feed.
type QuoteMirror interface {
	GetByMarket(ctx context.Context, marketID string) ([]models.MarketQuote, error)
}

// MarketController suspends and resumes repricing of a market
type MarketController interface {
	StopMarket(ctx context.Context, marketID string)
	ResumeMarket(marketID string)
}

// MarketHandler serves quotes and the risk view of a market
type MarketHandler struct {
	responder
	book    QuoteBook
	mirror  QuoteMirror
	control MarketController
	bets    *service.BetService
}

// NewMarketHandler creates a new market HTTP handler. mirror may be nil.
func NewMarketHandler(book QuoteBook, mirror QuoteMirror, control MarketController, bets *service.BetService, logger zerolog.Logger) *MarketHandler {
	return &MarketHandler{
		responder: responder{logger: logger.With().Str("component", "market_handler").Logger()},
		book:      book,
		mirror:    mirror,
		control:   control,
		bets:      bets,
	}
}

// RegisterRoutes registers HTTP routes with the provided mux
func (h *MarketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/markets/{id}/quotes", h.handleQuotes)
	mux.HandleFunc("GET /api/v1/markets/{id}/exposure", h.handleExposure)
	mux.HandleFunc("POST /api/v1/markets/{id}/suspend", h.handleSuspend)
	mux.HandleFunc("POST /api/v1/markets/{id}/resume", h.handleResume)
}

// handleQuotes handles GET /api/v1/markets/{id}/quotes. The local book is
// authoritative; the mirror answers only when the book knows nothing of the
// market.
func (h *MarketHandler) handleQuotes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	quotes := h.book.MarketQuotes(id)
	source := "book"

	if len(quotes) == 0 && h.mirror != nil {
		mirrored, err := h.mirror.GetByMarket(r.Context(), id)
		if err != nil {
			h.logger.Warn().Err(err).Str("market_id", id).Msg("failed to read quote mirror")
		} else {
			quotes = mirrored
			source = "mirror"
		}
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"market_id": id,
		"source":    source,
		"count":     len(quotes),
		"quotes":    quotes,
	})
}

// handleExposure handles GET /api/v1/markets/{id}/exposure
func (h *MarketHandler) handleExposure(w http.ResponseWriter, r *http.Request) {
	exp, err := h.bets.MarketExposure(r.Context(), r.PathValue("id"))
	if err != nil {
		h.domainError(w, r, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, exp)
}

// handleSuspend handles POST /api/v1/markets/{id}/suspend
func (h *MarketHandler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.control.StopMarket(r.Context(), id)
	h.logger.Info().Str("market_id", id).Msg("market suspended")
	w.WriteHeader(http.StatusNoContent)
}

// handleResume handles POST /api/v1/markets/{id}/resume
func (h *MarketHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.control.ResumeMarket(id)
	h.logger.Info().Str("market_id", id).Msg("market resumed")
	w.WriteHeader(http.StatusNoContent)
}
