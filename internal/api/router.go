// Package api exposes the turn orchestrator over HTTP and MCP. Handlers keep
// no state between requests.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kalambet/tasktalk/internal/orchestrator"
)

const maxRequestBodySize = 1 << 20 // 1MB

// TurnRunner runs one conversational turn. *orchestrator.Orchestrator
// satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

type Deps struct {
	Turns         TurnRunner
	Conversations ConversationStore
	Verifier      TokenVerifier
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(deps.Verifier))
		r.Post("/v1/chat", handleChat(deps.Turns))
		r.Get("/v1/conversations", handleListConversations(deps.Conversations))
		r.Get("/v1/conversations/{id}", handleGetConversation(deps.Conversations))
		r.Patch("/v1/conversations/{id}", handleRenameConversation(deps.Conversations))
		r.Delete("/v1/conversations/{id}", handleDeleteConversation(deps.Conversations))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ChatRequest is the body of POST /v1/chat. The caller's identity comes from
// the bearer token only.
type ChatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Utterance      string `json:"utterance"`
}

func handleChat(turns TurnRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				validationError(w, "body", "request body too large")
				return
			}
			validationError(w, "body", "invalid request body")
			return
		}

		utterance := strings.TrimSpace(req.Utterance)
		switch n := utf8.RuneCountInString(utterance); {
		case n == 0:
			validationError(w, "utterance", "utterance is required")
			return
		case n > orchestrator.MaxUtteranceLength:
			validationError(w, "utterance", "utterance must be at most 2000 characters")
			return
		}
		if req.ConversationID != "" {
			if _, err := uuid.Parse(req.ConversationID); err != nil {
				validationError(w, "conversationId", "conversationId must be a valid id")
				return
			}
		}

		res, err := turns.RunTurn(r.Context(), orchestrator.Request{
			Owner:          ownerOf(r),
			ConversationID: req.ConversationID,
			Utterance:      utterance,
		})
		if err != nil {
			turnError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
