package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ruralpay/ledger/internal/models"
)

const maxBodyBytes = 1_048_576

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error      string            `json:"error"`                // Error message
	Code       string            `json:"code,omitempty"`       // Ledger error kind
	Difference *int64            `json:"difference,omitempty"` // debits - credits, unbalanced only
	Details    map[string]string `json:"details,omitempty"`    // Validation details
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, inputErr *models.InputError) {
	resp := ErrorResponse{Error: message}
	if inputErr != nil {
		resp.Code = "InvalidInput"
		resp.Details = inputErr.Fields
	}
	writeJSON(w, statusCode, resp)
}

// sendLedgerError maps a ledger error to its status code. Retryable failures
// carry no detail beyond the retry hint.
func sendLedgerError(w http.ResponseWriter, err error) {
	var (
		inputErr      *models.InputError
		validationErr *models.ValidationError
		hierarchyErr  *models.HierarchyError
	)

	switch {
	case errors.As(err, &inputErr):
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, inputErr)
	case errors.As(err, &validationErr):
		resp := ErrorResponse{Error: err.Error(), Code: string(validationErr.Rule)}
		if validationErr.Rule == models.RuleUnbalancedTransaction {
			diff := validationErr.Difference
			resp.Difference = &diff
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.As(err, &hierarchyErr) && hierarchyErr.Kind != models.HierarchyCorrupt:
		status := http.StatusUnprocessableEntity
		if hierarchyErr.Kind == models.HierarchyCyclic {
			status = http.StatusConflict
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: string(hierarchyErr.Kind)})
	case errors.Is(err, models.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "InvalidTransition"})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "NotFound"})
	case errors.Is(err, models.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "AlreadyExists"})
	case models.IsRetryable(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: models.ErrRetryable.Error(), Code: "Retryable"})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object with no unknown fields. It writes
// the error response itself and reports whether the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}
