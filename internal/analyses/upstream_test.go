package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPScorerSuccess(t *testing.T) {
	var got ScoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyze" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"score":77,"scoring_method":"hybrid_v2"}`))
	}))
	t.Cleanup(srv.Close)

	scorer := NewHTTPScorer(ScorerConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	raw, err := scorer.Score(context.Background(), ScoreRequest{Resume: "r", JobDescription: "j"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if string(raw) != `{"score":77,"scoring_method":"hybrid_v2"}` {
		t.Fatalf("unexpected body %s", raw)
	}
	if got.Resume != "r" || got.JobDescription != "j" {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestHTTPScorerClientErrorDoesNotTrip(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Resume text is required","error_code":"RESUME_REQUIRED"}`))
	}))
	t.Cleanup(srv.Close)

	scorer := NewHTTPScorer(ScorerConfig{BaseURL: srv.URL, MinRequests: 2, FailureRatio: 0.5})
	for i := 0; i < 5; i++ {
		_, err := scorer.Score(context.Background(), ScoreRequest{})
		var upErr *UpstreamError
		if !errors.As(err, &upErr) {
			t.Fatalf("call %d: expected UpstreamError, got %v", i, err)
		}
		if upErr.Status != http.StatusBadRequest || upErr.Code != "RESUME_REQUIRED" {
			t.Fatalf("unexpected upstream error %+v", upErr)
		}
	}
	if atomic.LoadInt32(&calls) != 5 {
		t.Fatalf("expected every call to reach the server, got %d", calls)
	}
}

func TestHTTPScorerBreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	scorer := NewHTTPScorer(ScorerConfig{BaseURL: srv.URL, MinRequests: 2, FailureRatio: 0.5, OpenTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		_, err := scorer.Score(context.Background(), ScoreRequest{})
		var upErr *UpstreamError
		if !errors.As(err, &upErr) || upErr.Status != http.StatusInternalServerError {
			t.Fatalf("call %d: expected 500 upstream error, got %v", i, err)
		}
	}

	_, err := scorer.Score(context.Background(), ScoreRequest{})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected open breaker to report unavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected open breaker to stop calls, got %d", calls)
	}
}

func TestHTTPScorerTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	scorer := NewHTTPScorer(ScorerConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := scorer.Score(context.Background(), ScoreRequest{})
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
}

func TestHTTPScorerTimeoutCoversRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(120 * time.Millisecond)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	// The first attempt returns a retryable 503 close to the deadline; the
	// retry must not get a fresh timeout of its own.
	scorer := NewHTTPScorer(ScorerConfig{BaseURL: srv.URL, Timeout: 200 * time.Millisecond})
	start := time.Now()
	_, err := scorer.Score(context.Background(), ScoreRequest{})
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected a single attempt inside the deadline, got %d", n)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call outlived its timeout: %v", elapsed)
	}
}
