package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sahilchouksey/exam-parser/services/llm"
)

func TestOCRClient_ProcessFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ocr/file" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-a" {
			t.Errorf("authorization = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		data, _ := io.ReadAll(file)
		if header.Filename != "paper.pdf" || string(data) != "%PDF-1.4" {
			t.Errorf("upload = %s %q", header.Filename, data)
		}
		json.NewEncoder(w).Encode(OCRResponse{Text: "# Exam\n1. What is 2+2?", PageCount: 1})
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, llm.NewKeyPool("key-a"))
	resp, err := client.ProcessFile(context.Background(), []byte("%PDF-1.4"), "paper.pdf")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if resp.Text != "# Exam\n1. What is 2+2?" || resp.PageCount != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOCRClient_RotatesKeys(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer key-b" {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(OCRResponse{Text: "ok"})
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, llm.NewKeyPool("key-a", "key-b"))
	resp, err := client.ProcessFile(context.Background(), []byte("x"), "a.pdf")
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if resp.Text != "ok" || len(seen) != 2 {
		t.Errorf("resp = %+v, attempts = %v", resp, seen)
	}
}

func TestOCRClient_StopsAfterEachKeyTried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOCRClient(server.URL, llm.NewKeyPool("key-a", "key-b"))
	for round := 1; round <= 2; round++ {
		if _, err := client.ProcessFile(context.Background(), []byte("x"), "a.pdf"); err == nil {
			t.Fatal("expected error")
		}
		if calls != 2*round {
			t.Errorf("round %d: expected %d calls, got %d", round, 2*round, calls)
		}
	}
}

func TestOCRClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewOCRClient(server.URL, nil).ProcessFile(context.Background(), []byte("x"), "a.pdf")
	var statusErr *llm.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status error, got %v", err)
	}

	if _, err := NewOCRClient("", nil).ProcessFile(context.Background(), nil, "a.pdf"); !errors.Is(err, ErrOCRNotConfigured) {
		t.Errorf("expected ErrOCRNotConfigured, got %v", err)
	}
}

func TestOCRClient_HealthCheck(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := NewOCRClient(server.URL+"/", nil)
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	healthy = false
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("expected unhealthy error")
	}
	if err := NewOCRClient("", nil).HealthCheck(context.Background()); !errors.Is(err, ErrOCRNotConfigured) {
		t.Errorf("expected ErrOCRNotConfigured, got %v", err)
	}
}
