package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/efreitasn/matchcore/internal/command"
	"github.com/efreitasn/matchcore/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes a single JSON object from the request body into v.
// Unknown fields and trailing data are rejected. Errors are
// *domain.ValidationError so they map to 400.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return &domain.ValidationError{Message: "Request body must be valid JSON with Content-Type: application/json"}
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Message: "Request body must be valid JSON: " + err.Error()}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &domain.ValidationError{Message: "Request body must contain a single JSON object"}
	}
	return nil
}

// writeCommandError maps an error returned by the dispatcher to an HTTP
// response.
func writeCommandError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var decodeErr *command.DecodeError
	switch {
	case errors.As(err, &decodeErr):
		WriteError(w, http.StatusBadRequest, "invalid_request", decodeErr.Error())
	case errors.As(err, &validationErr):
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
	case errors.Is(err, domain.ErrMarketNotFound):
		WriteError(w, http.StatusNotFound, "market_not_found", "Market not found")
	case errors.Is(err, domain.ErrInsufficientFunds):
		WriteError(w, http.StatusConflict, "insufficient_funds", "Insufficient available balance to escrow the order")
	case errors.Is(err, domain.ErrAmountOverflow):
		WriteError(w, http.StatusUnprocessableEntity, "amount_overflow", "Amount exceeds the representable range")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
