package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cypherlabdev/bet-engine-service/internal/cache"
	"github.com/cypherlabdev/bet-engine-service/internal/models"
)

// maxBodyBytes bounds request bodies; every request here is a small JSON object.
const maxBodyBytes = 1 << 16

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorStatus = []struct {
	err    error
	status int
}{
	{models.ErrEmptySlip, http.StatusUnprocessableEntity},
	{models.ErrInsufficientFunds, http.StatusPaymentRequired},
	{models.ErrInvalidTransition, http.StatusConflict},
	{models.ErrCashOutUnavailable, http.StatusServiceUnavailable},
	{models.ErrOddsChanged, http.StatusPreconditionFailed},
	{models.ErrBusy, http.StatusTooManyRequests},
	{models.ErrKYCRequired, http.StatusForbidden},
	{models.ErrLimitExceeded, http.StatusForbidden},
	{models.ErrAccountNotFound, http.StatusNotFound},
	{models.ErrBetNotFound, http.StatusNotFound},
	{models.ErrNotQuotable, http.StatusNotFound},
	{models.ErrInvalidStake, http.StatusBadRequest},
	{models.ErrInvalidAmount, http.StatusBadRequest},
	{models.ErrInvalidOdds, http.StatusBadRequest},
	{models.ErrInvalidOutcome, http.StatusBadRequest},
	{models.ErrConflictingSelection, http.StatusConflict},
	{models.ErrTooManySelections, http.StatusUnprocessableEntity},
	{models.ErrAccountExists, http.StatusConflict},
	{models.ErrBetExists, http.StatusConflict},
	{models.ErrInvalidKYCTransition, http.StatusConflict},
	{cache.ErrSlipContention, http.StatusConflict},
}

// StatusFor maps a domain error to its HTTP status
func StatusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

type responder struct {
	logger zerolog.Logger
}

// jsonResponse writes a JSON response
func (h responder) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// errorResponse writes a JSON error response
func (h responder) errorResponse(w http.ResponseWriter, status int, code, message string) {
	h.jsonResponse(w, status, ErrorResponse{Error: message, Code: code})
}

// badRequest reports malformed input
func (h responder) badRequest(w http.ResponseWriter, message string) {
	h.errorResponse(w, http.StatusBadRequest, "BAD_REQUEST", message)
}

// domainError maps err to a status and code. Internal failures are logged and
// their detail withheld from the client.
func (h responder) domainError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		h.errorResponse(w, status, "INTERNAL", "internal error")
		return
	}

	code := models.Code(err)
	if errors.Is(err, cache.ErrSlipContention) {
		code = "SLIP_CONTENTION"
	}
	h.errorResponse(w, status, code, err.Error())
}

// decode reads a JSON body into v, rejecting unknown fields
func (h responder) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.badRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}
