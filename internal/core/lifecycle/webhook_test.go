package lifecycle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWebhookClient_Post_SucceedsOnFirstAttempt(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWebhookClient(2*time.Second, nil)
	if err := client.Post(context.Background(), "pkg-a", srv.URL, map[string]string{"type": "session_request"}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWebhookClient_Post_RetriesOnFailureThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewWebhookClient(2*time.Second, nil)
	client.breakerFor("pkg-a") // pre-create so retries aren't gated by breaker defaults mid-test

	start := time.Now()
	err := client.Post(context.Background(), "pkg-a", srv.URL, map[string]string{"type": "session_request"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Post() error = nil, want error after exhausting retries")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
	if elapsed < 3*time.Second {
		t.Errorf("elapsed = %v, want at least 3s (1s + 2s backoff)", elapsed)
	}
}
