package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func tagsJSON(names ...string) []byte {
	var r tagsResponse
	for _, n := range names {
		r.Models = append(r.Models, struct {
			Name string `json:"name"`
		}{n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestIsRunning(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.1:latest"))
	}))
	defer up.Close()
	if !New(up.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()
	if New(down.URL).IsRunning(context.Background()) {
		t.Error("IsRunning() on a closed server = true, want false")
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.1:latest", "qwen2.5:7b"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	tests := []struct {
		name string
		want bool
	}{
		{"llama3.1", true},
		{"qwen2.5:7b", true},
		{"qwen2.5", true},
		{"mistral", false},
		{"llama3", false},
	}
	for _, tt := range tests {
		if got := c.HasModel(context.Background(), tt.name); got != tt.want {
			t.Errorf("HasModel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestChat_ToolCall(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&captured)
		io.WriteString(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"add_task","arguments":{"title":"buy milk"}}}]}}`)
	}))
	defer srv.Close()

	tools := []Tool{{Type: "function", Function: ToolFunction{Name: "add_task", Parameters: map[string]any{"type": "object"}}}}
	msg, err := New(srv.URL).Chat(context.Background(), "llama3.1", []Message{
		{Role: "user", Content: "add a task to buy milk"},
	}, ChatOptions{Tools: tools})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if captured.Stream {
		t.Error("chat request asked for streaming")
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Function.Name != "add_task" {
		t.Errorf("tools sent = %+v", captured.Tools)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0].Function
	if call.Name != "add_task" || string(call.Arguments) != `{"title":"buy milk"}` {
		t.Errorf("tool call = %s %s", call.Name, call.Arguments)
	}
}

func TestComplete_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Message: Message{Role: "assistant", Content: "Groceries"}})
	}))
	defer srv.Close()

	got, err := New(srv.URL).Complete(context.Background(), "llama3.1", []Message{{Role: "user", Content: "title?"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Groceries" {
		t.Errorf("Complete = %q, want %q", got, "Groceries")
	}
}

func TestChat_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"model \"nope\" not found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "nope", nil, ChatOptions{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusNotFound || !strings.Contains(se.Body, "not found") {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "llama3.1" {
			t.Errorf("pull model = %v, want llama3.1", body["model"])
		}
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 500})
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 1000})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	var n int
	if err := New(srv.URL).PullModel(context.Background(), "llama3.1", func(PullProgress) { n++ }); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if n != 3 {
		t.Errorf("received %d progress updates, want 3", n)
	}
}

func TestPullModel_StreamedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"pulling manifest"}`+"\n"+`{"error":"file does not exist"}`+"\n")
	}))
	defer srv.Close()

	err := New(srv.URL).PullModel(context.Background(), "ghost", nil)
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Errorf("err = %v, want streamed error", err)
	}
}

func TestEnsureReady(t *testing.T) {
	var pulled, chatted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write(tagsJSON())
		case "/api/pull":
			pulled = true
			io.WriteString(w, `{"status":"success"}`)
		case "/api/chat":
			chatted = true
			io.WriteString(w, `{"message":{"role":"assistant","content":"pong"}}`)
		}
	}))
	defer srv.Close()

	var out strings.Builder
	if err := EnsureReady(context.Background(), New(srv.URL), "llama3.1", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !pulled || !chatted {
		t.Errorf("pulled=%v chatted=%v, want both", pulled, chatted)
	}
	if !strings.Contains(out.String(), "model llama3.1: ready") {
		t.Errorf("output = %q", out.String())
	}
}

func TestEnsureReady_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := EnsureReady(context.Background(), New(srv.URL), "llama3.1", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Errorf("err = %v, want not running", err)
	}
}
