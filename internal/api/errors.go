package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kalambet/tasktalk/internal/orchestrator"
)

const kindUnauthenticated = "unauthenticated"

// retryAfterSeconds is sent with service_unavailable responses.
const retryAfterSeconds = "5"

type errorBody struct {
	ErrorKind      string `json:"errorKind"`
	Detail         string `json:"detail"`
	Field          string `json:"field,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

func statusOf(kind orchestrator.Kind) int {
	switch kind {
	case orchestrator.KindValidation:
		return http.StatusBadRequest
	case orchestrator.KindNotFound:
		return http.StatusNotFound
	case orchestrator.KindAlreadyCompleted:
		return http.StatusConflict
	case orchestrator.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func httpError(w http.ResponseWriter, code int, body errorBody) {
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, code, body)
}

func validationError(w http.ResponseWriter, field, detail string) {
	httpError(w, http.StatusBadRequest, errorBody{
		ErrorKind: string(orchestrator.KindValidation),
		Field:     field,
		Detail:    detail,
	})
}

// turnError writes err as one of the taxonomy kinds. Errors of unknown type
// are reported as store_error without detail.
func turnError(w http.ResponseWriter, err error) {
	var e *orchestrator.Error
	if !errors.As(err, &e) {
		slog.Error("unclassified error", "error", err)
		e = &orchestrator.Error{Kind: orchestrator.KindStoreError, Detail: "storage failure"}
	}
	if e.Kind == orchestrator.KindStoreError {
		slog.Error("request failed", "error", err)
	}
	httpError(w, statusOf(e.Kind), errorBody{
		ErrorKind:      string(e.Kind),
		Detail:         e.Detail,
		Field:          e.Field,
		ConversationID: e.ConversationID,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
