package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	var got chatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","choices":[{"message":{"role":"assistant","content":"{\"action\":\"reserve\"}"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := New(server.URL+"/v1/", "sk-test", "gpt-4o-mini", 5*time.Second)
	text, err := client.Complete(context.Background(), "system prompt", "quiero reservar")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"action":"reserve"}` {
		t.Fatalf("text = %q", text)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != "gpt-4o-mini" || got.Temperature != 0 || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Content != "quiero reservar" {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestCompleteProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit","message":"slow down"}}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "", "m", time.Second).Complete(context.Background(), "s", "u")
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if pe.StatusCode != http.StatusTooManyRequests || pe.Type != "rate_limit" || pe.Message != "slow down" {
		t.Fatalf("ProviderError = %+v", pe)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := New(server.URL, "", "m", time.Second).Complete(context.Background(), "s", "u")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	if _, err := New(server.URL, "", "m", 20*time.Millisecond).Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected timeout error")
	}
}
