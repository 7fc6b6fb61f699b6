package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

func TestDoJSONRetriesServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&count, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"x"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New(2*time.Second, 1)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	var out map[string]any
	if _, err := client.DoJSON(context.Background(), req, &out); err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected response: %#v", out)
	}
}

func TestPostJSONSendsBodyOnEveryAttempt(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["query"] != "q" {
			t.Errorf("unexpected body: %v %v", payload, err)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "agencybot/") {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if atomic.AddInt32(&count, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out map[string]any
	if err := New(2*time.Second, 1).PostJSON(context.Background(), srv.URL, map[string]string{"query": "q"}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if atomic.LoadInt32(&count) != 2 || out["ok"] != true {
		t.Fatalf("unexpected result count=%d out=%v", count, out)
	}
}

func TestDoJSONRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New(2*time.Second, 0).PostJSON(context.Background(), srv.URL, map[string]string{}, nil)
	if !clierr.Is(err, clierr.CodeRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestDoJSONDeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := New(5*time.Second, 2).PostJSON(ctx, srv.URL, map[string]string{}, nil)
	if !clierr.Is(err, clierr.CodeTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestDoJSONRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	var out map[string]any
	err := New(time.Second, 0).PostJSON(context.Background(), srv.URL, map[string]string{}, &out)
	if !clierr.Is(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestRetryAfterIsCapped(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "120")
	if got := retryAfter(h); got != maxRetryAfter {
		t.Fatalf("expected cap, got %s", got)
	}
	h.Set("Retry-After", "soon")
	if got := retryAfter(h); got != 0 {
		t.Fatalf("expected zero for unparsable header, got %s", got)
	}
}
