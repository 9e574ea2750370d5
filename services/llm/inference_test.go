package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":    "cmpl-1",
		"model": "test-model",
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	return string(body)
}

func TestInferenceClient_Complete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-a" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody(`{"questions":[]}`)))
	}))
	defer server.Close()

	client := NewInferenceClient(InferenceConfig{
		Keys:    NewKeyPool("key-a"),
		BaseURL: server.URL,
		Model:   "test-model",
	})

	resp, err := client.Complete(context.Background(), CompletionRequest{
		System:      "sys",
		User:        "user",
		MaxTokens:   8192,
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"questions":[]}` {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.Raw) == 0 {
		t.Error("expected raw envelope")
	}

	if got.Model != "test-model" || got.MaxTokens != 8192 || got.Temperature != 0.1 {
		t.Errorf("unexpected request %+v", got)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "user" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestInferenceClient_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewInferenceClient(InferenceConfig{Keys: NewKeyPool("k"), BaseURL: server.URL})
	_, err := client.Complete(context.Background(), CompletionRequest{User: "x"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected StatusError 500, got %v", err)
	}
}

func TestInferenceClient_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway</html>"},
		{"no choices", `{"id":"x","choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewInferenceClient(InferenceConfig{Keys: NewKeyPool("k"), BaseURL: server.URL})
			if _, err := client.Complete(context.Background(), CompletionRequest{User: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestInferenceClient_RotatesKeysOnThrottle(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		mu.Lock()
		seen = append(seen, auth)
		mu.Unlock()
		if auth != "Bearer key-c" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionBody("ok")))
	}))
	defer server.Close()

	pool := NewKeyPool("key-a", "key-b", "key-c")
	client := NewInferenceClient(InferenceConfig{Keys: pool, BaseURL: server.URL})

	resp, err := client.Complete(context.Background(), CompletionRequest{User: "x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 attempts, got %v", seen)
	}
	if pool.Current() != "key-c" {
		t.Errorf("pool should stay on the working key, got %s", pool.Current())
	}
}

func TestInferenceClient_StopsAfterFullRotation(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewInferenceClient(InferenceConfig{Keys: NewKeyPool("a", "b"), BaseURL: server.URL})
	if _, err := client.Complete(context.Background(), CompletionRequest{User: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected each key tried once, got %d calls", calls)
	}
}

func TestInferenceClient_ConcurrentRotationKeepsPerCallBudget(t *testing.T) {
	var mu sync.Mutex
	firstKeyHits := 0
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer k0":
			// hold both callers on k0 so they see the same rejection
			mu.Lock()
			firstKeyHits++
			if firstKeyHits == 2 {
				close(release)
			}
			mu.Unlock()
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
			w.WriteHeader(http.StatusTooManyRequests)
		case "Bearer k1":
			w.Write([]byte(completionBody("ok")))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer server.Close()

	pool := NewKeyPool("k0", "k1", "k2")
	client := NewInferenceClient(InferenceConfig{Keys: pool, BaseURL: server.URL})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Complete(context.Background(), CompletionRequest{User: "x"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
	if pool.Current() != "k1" {
		t.Errorf("pool should advance once to k1, got %s", pool.Current())
	}
}

func TestInferenceClient_NoKeys(t *testing.T) {
	client := NewInferenceClient(InferenceConfig{BaseURL: "http://127.0.0.1:0"})
	if _, err := client.Complete(context.Background(), CompletionRequest{}); !errors.Is(err, ErrNoAPIKeys) {
		t.Fatalf("expected ErrNoAPIKeys, got %v", err)
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		format, _ := req["response_format"].(map[string]any)
		if format["type"] != "json_object" {
			t.Errorf("expected json_object format, got %v", req["response_format"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody(`{"total_questions":3}`)))
	}))
	defer server.Close()

	client := NewOpenAIClient(InferenceConfig{Keys: NewKeyPool("k"), BaseURL: server.URL})
	resp, err := client.Complete(context.Background(), CompletionRequest{User: "x", JSONMode: true, MaxTokens: 2048})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"total_questions":3}` {
		t.Errorf("content = %q", resp.Content)
	}
}
