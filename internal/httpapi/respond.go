package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
)

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	ReasonCode domain.ReasonCode `json:"reason_code,omitempty"`
	Message    string            `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// writeReject maps a request-level rejection to 403 for a missing role
// and 422 for everything else.
func writeReject(w http.ResponseWriter, rej *domain.Reject) {
	status := http.StatusUnprocessableEntity
	if rej.Code == domain.ReasonRoleAccessDenied {
		status = http.StatusForbidden
	}
	writeJSON(w, status, errorBody{ReasonCode: rej.Code, Message: rej.Message})
}

func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorBody{ReasonCode: domain.ReasonValidationFailed, Message: msg})
}

func writeInternal(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorBody{
		ReasonCode: domain.ReasonInternalError,
		Message:    "Internal error; retry later.",
	})
}
