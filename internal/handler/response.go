package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/statxchange/statxchange/internal/domain"
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

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// mapDomainError translates domain errors to HTTP responses. Unknown
// errors become 500s.
func mapDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		WriteError(w, http.StatusBadRequest, "validation_error", ve.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrSecurityNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrContractNotFound),
		errors.Is(err, domain.ErrPositionNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "resource not found")
	case errors.Is(err, domain.ErrSecurityAlreadyExists):
		WriteError(w, http.StatusConflict, err.Error(), "security already registered")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusForbidden, err.Error(), "requester does not own this resource")
	case errors.Is(err, domain.ErrTradingHalted):
		WriteError(w, http.StatusConflict, err.Error(), "circuit breaker is active for this security")
	case errors.Is(err, domain.ErrAlreadyFilled),
		errors.Is(err, domain.ErrOrderNotCancellable),
		errors.Is(err, domain.ErrNoLiquidity),
		errors.Is(err, domain.ErrInsufficientBorrow),
		errors.Is(err, domain.ErrOverCover),
		errors.Is(err, domain.ErrNotInTheMoney),
		errors.Is(err, domain.ErrCannotExerciseShort):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "business rule rejected the request")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
