package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"mentorbook-backend/internal/domain"
	"mentorbook-backend/internal/logger"
)

type errorBody struct {
	Error     string            `json:"error"`
	Kind      domain.ErrorKind  `json:"kind,omitempty"`
	Conflicts []domain.Interval `json:"conflicts,omitempty"`
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidRecurrence:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict, domain.KindIllegalTransition, domain.KindDuplicate:
		return http.StatusConflict
	case domain.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case domain.KindWalletLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto a status code. Infrastructure faults
// are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	code := statusForKind(kind)
	if code == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, code, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, code, errorBody{
		Error:     err.Error(),
		Kind:      kind,
		Conflicts: domain.ConflictsOf(err),
	})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a bounded JSON body into dst and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("invalid request body: %v", err)
	}
	return nil
}

var (
	errNoSecret     = errors.New("webhook secret is not configured")
	errBadSignature = errors.New("signature mismatch")
)
