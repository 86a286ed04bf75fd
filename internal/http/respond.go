package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jefersonfloz/ahorraplus/internal/core"
	"github.com/jefersonfloz/ahorraplus/internal/ledger"
)

// apiResponse is the uniform envelope the UI expects.
type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data}); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(apiResponse{Success: false, Message: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// writeLedgerError maps ledger and domain errors to HTTP statuses:
// rejected input and local precondition failures are 4xx, upstream trouble
// is 5xx. The message is safe to show to the user.
func writeLedgerError(w http.ResponseWriter, err error) {
	var (
		remote      *ledger.RemoteError
		unavailable *ledger.DataUnavailableError
	)

	switch {
	case errors.Is(err, ledger.ErrGoalNotFound):
		writeError(w, http.StatusNotFound, "goal not found")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient funds")
	case errors.Is(err, ledger.ErrWithdrawalLocked):
		writeError(w, http.StatusConflict, "withdrawals from high priority goals are locked until completion")
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &remote):
		writeError(w, http.StatusBadGateway, "goal store rejected the operation")
	case errors.As(err, &unavailable), errors.Is(err, ledger.ErrNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "goal store unavailable, try again")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyName,
		core.ErrInvalidAmount,
		core.ErrInvalidDate,
		core.ErrInvalidPriority,
		core.ErrInvalidFrequency,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
