package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestComplete_ToolCall(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"list_tasks","arguments":"{\"status\":\"pending\"}"}}]},
			"finish_reason":"tool_calls"}]}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL)
	resp, err := c.Complete(context.Background(), ChatRequest{
		Model:      "openai/gpt-4o-mini",
		Messages:   []Message{TextMessage("user", "what's pending?")},
		Tools:      []Tool{{Type: "function", Function: ToolFunction{Name: "list_tasks", Parameters: json.RawMessage(`{"type":"object"}`)}}},
		ToolChoice: "auto",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if got.ToolChoice != "auto" || len(got.Tools) != 1 {
		t.Errorf("request tools = %+v choice=%q", got.Tools, got.ToolChoice)
	}
	msg := resp.Choices[0].Message
	if msg.Content != nil {
		t.Errorf("content = %q, want null", msg.Text())
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "call_1" || msg.ToolCalls[0].Function.Arguments != `{"status":"pending"}` {
		t.Errorf("tool calls = %+v", msg.ToolCalls)
	}
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	resp, err := NewClient("k", srv.URL).Complete(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if resp.Choices[0].Message.Text() != "ok" {
		t.Errorf("content = %q", resp.Choices[0].Message.Text())
	}
}

func TestComplete_GivesUpOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := NewClient("k", srv.URL).Complete(context.Background(), ChatRequest{Model: "m"})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitError", err)
	}
	if calls.Load() != maxRetries {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries)
	}
	// 500ms + 1s of backoff between three attempts.
	if time.Since(start) < 1500*time.Millisecond {
		t.Errorf("retries did not back off")
	}
}

func TestComplete_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := NewClient("k", srv.URL).Complete(ctx, ChatRequest{Model: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestComplete_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL).Complete(context.Background(), ChatRequest{Model: "m"})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("err = %v, want 401 StatusError", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	if _, err := NewClient("k", srv.URL).Complete(context.Background(), ChatRequest{Model: "m"}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"object":"list","data":[{"id":"openai/gpt-4o-mini","object":"model"}]}`)
	}))
	defer srv.Close()

	models, err := NewClient("k", srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID != "openai/gpt-4o-mini" {
		t.Errorf("models = %+v", models)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
