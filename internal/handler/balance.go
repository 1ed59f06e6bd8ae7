package handler

import (
	"net/http"

	"github.com/efreitasn/matchcore/internal/command"
	"github.com/efreitasn/matchcore/internal/domain"
	"github.com/efreitasn/matchcore/internal/service"
	"github.com/go-chi/chi/v5"
)

// BalanceHandler handles HTTP requests for balance endpoints.
type BalanceHandler struct {
	dispatcher *service.Dispatcher
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(dispatcher *service.Dispatcher) *BalanceHandler {
	return &BalanceHandler{dispatcher: dispatcher}
}

// creditRequest is the JSON request body for POST /balances.
type creditRequest struct {
	UserID string  `json:"user_id"`
	Asset  string  `json:"asset"`
	Amount *uint64 `json:"amount"`
}

// balanceResponse is the JSON response for balance endpoints.
type balanceResponse struct {
	UserID    string            `json:"user_id"`
	Available map[string]uint64 `json:"available"`
	Locked    map[string]uint64 `json:"locked"`
}

func newBalanceResponse(userID string, b domain.UserBalance) balanceResponse {
	return balanceResponse{UserID: userID, Available: b.Available, Locked: b.Locked}
}

// Credit handles POST /balances.
func (h *BalanceHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := ParseJSON(r, &req); err != nil {
		writeCommandError(w, err)
		return
	}
	switch {
	case req.UserID == "":
		WriteError(w, http.StatusBadRequest, "validation_error", "user_id is required")
		return
	case req.Asset == "":
		WriteError(w, http.StatusBadRequest, "validation_error", "asset is required")
		return
	case req.Amount == nil:
		WriteError(w, http.StatusBadRequest, "validation_error", "amount is required")
		return
	}

	res, err := h.dispatcher.Dispatch(command.AddBalance{
		RequestID: requestIDFrom(r),
		UserID:    req.UserID,
		Asset:     req.Asset,
		Amount:    *req.Amount,
	})
	if err != nil {
		writeCommandError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, newBalanceResponse(req.UserID, *res.Balance))
}

// Get handles GET /balances/{user_id}.
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	bal, ok := h.dispatcher.Engine().Balance(userID)
	if !ok {
		WriteError(w, http.StatusNotFound, "user_not_found", "No balance recorded for user")
		return
	}

	WriteJSON(w, http.StatusOK, newBalanceResponse(userID, bal))
}
