package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "deepseek-chat" || len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.MaxTokens != 4096 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"echo: ` + req.Messages[0].Content + `"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, APIKey: "sk-test", Temperature: 0.1}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	text, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "echo: hello" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestCompleteRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, APIKey: "k", Attempts: 3}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	text, err := client.Complete(context.Background(), "p")
	if err != nil || text != "ok" {
		t.Fatalf("expected ok after retries, got %q err=%v", text, err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestCompleteSurfacesErrorAfterAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, APIKey: "k", Attempts: 2}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Complete(context.Background(), "p")
	if err == nil || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected failure after 2 calls, got err=%v calls=%d", err, calls)
	}
}

func TestCompleteJSONStripsFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, _ := json.Marshal("```json\n{\"entity\":\"A1\",\"days\":3}\n```")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":` + string(content) + `}}]}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL, APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var out struct {
		Entity string `json:"entity"`
		Days   int    `json:"days"`
	}
	if err := client.CompleteJSON(context.Background(), "extract", &out); err != nil {
		t.Fatalf("complete json: %v", err)
	}
	if out.Entity != "A1" || out.Days != 3 {
		t.Fatalf("unexpected decoded: %+v", out)
	}
}
