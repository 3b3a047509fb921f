package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/aurora-erp/aurora-erp/internal/shared"
	"github.com/aurora-erp/aurora-erp/internal/viewgen"
	"github.com/aurora-erp/aurora-erp/internal/workflow"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps the error taxonomy onto HTTP status codes. Backend and
// configuration failures both collapse to 500: neither is the client's fault
// and neither message is safe to forward verbatim.
func statusFor(err error) int {
	switch viewgen.ErrorClass(err) {
	case "validation":
		return http.StatusBadRequest
	case "authorization":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	body := errorBody{Error: http.StatusText(status)}
	switch e := err.(type) {
	case *shared.ValidationError:
		body.Error = e.Reason
		body.Field = e.Field
	case *shared.AuthorizationError:
		body.Error = "permission denied"
	case *shared.NotFoundError:
		body.Error = "record not found"
	}
	if status >= 500 && logger != nil {
		logger.Error("request failed", slog.Any("error", err))
	}
	writeJSON(w, status, body)
}

// writeHTMLError renders a user-safe fragment for the HTML view endpoints.
func writeHTMLError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= 500 && logger != nil {
		logger.Error("view generation failed", slog.Any("error", err))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(viewgen.ErrorFragment(err)))
}

type resultBody struct {
	Success   bool   `json:"success"`
	EntityID  string `json:"entity_id,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// writeResult serializes a workflow outcome. Rejected transitions are valid
// requests that the business rules refused, hence 422 rather than 400.
func writeResult(w http.ResponseWriter, res workflow.Result, createdStatus int) {
	body := resultBody{Success: res.Success, NewStatus: res.NewStatus, Reason: res.Reason}
	if res.EntityID != uuid.Nil {
		body.EntityID = res.EntityID.String()
	}
	if res.Success {
		writeJSON(w, createdStatus, body)
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, body)
}
