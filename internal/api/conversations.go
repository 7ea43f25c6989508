package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/tasktalk/internal/orchestrator"
	"github.com/kalambet/tasktalk/internal/storage"
)

// ConversationStore is the owner-scoped conversation access the API needs.
type ConversationStore interface {
	ListConversations(ctx context.Context, owner string, limit, offset int) ([]storage.Conversation, error)
	GetConversation(ctx context.Context, id, owner string) (storage.Conversation, error)
	GetRecentMessages(ctx context.Context, conversationID, owner string, limit int) ([]storage.Message, error)
	RenameConversation(ctx context.Context, id, owner, title string) (storage.Conversation, error)
	DeleteConversation(ctx context.Context, id, owner string) error
}

type conversationView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageView struct {
	ID         string          `json:"id"`
	Role       storage.Role    `json:"role"`
	Content    string          `json:"content"`
	Operations json.RawMessage `json:"operations,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type conversationDetail struct {
	conversationView
	Messages []messageView `json:"messages"`
}

func viewOf(c storage.Conversation) conversationView {
	return conversationView{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func handleListConversations(store ConversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		convs, err := store.ListConversations(r.Context(), ownerOf(r), limit, offset)
		if err != nil {
			storeFailure(w, "listing conversations", err)
			return
		}
		out := make([]conversationView, len(convs))
		for i, c := range convs {
			out[i] = viewOf(c)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetConversation(store ConversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(w, r)
		if !ok {
			return
		}
		owner := ownerOf(r)
		c, err := store.GetConversation(r.Context(), id, owner)
		if err != nil {
			storeFailure(w, "loading conversation", err)
			return
		}
		msgs, err := store.GetRecentMessages(r.Context(), id, owner, parseIntParam(r, "limit", storage.DefaultHistoryLimit, 500))
		if err != nil {
			storeFailure(w, "loading messages", err)
			return
		}
		detail := conversationDetail{conversationView: viewOf(c), Messages: make([]messageView, len(msgs))}
		for i, m := range msgs {
			detail.Messages[i] = messageView{ID: m.ID, Role: m.Role, Content: m.Content, Operations: m.OperationRecord, CreatedAt: m.CreatedAt}
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func handleRenameConversation(store ConversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var body struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			validationError(w, "body", "invalid request body")
			return
		}
		title := strings.TrimSpace(body.Title)
		if title == "" || utf8.RuneCountInString(title) > storage.MaxTitleLength {
			validationError(w, "title", "title must be 1..200 characters")
			return
		}

		c, err := store.RenameConversation(r.Context(), id, ownerOf(r), title)
		if err != nil {
			storeFailure(w, "renaming conversation", err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(c))
	}
}

func handleDeleteConversation(store ConversationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(w, r)
		if !ok {
			return
		}
		if err := store.DeleteConversation(r.Context(), id, ownerOf(r)); err != nil {
			storeFailure(w, "deleting conversation", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		validationError(w, "id", "id must be a valid conversation id")
		return "", false
	}
	return id, true
}

func storeFailure(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		turnError(w, &orchestrator.Error{Kind: orchestrator.KindNotFound, Detail: "conversation not found", Err: err})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		turnError(w, &orchestrator.Error{Kind: orchestrator.KindServiceUnavailable, Detail: "storage timed out, try again", Err: err})
		return
	}
	turnError(w, &orchestrator.Error{Kind: orchestrator.KindStoreError, Detail: "storage failure", Err: fmt.Errorf("%s: %w", op, err)})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
