package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-tailor/internal/subscription"
)

const legacyBody = `{"score":72,"score_breakdown":{"keywords":70,"semantic":75,"tone":71},
"keywords":{"missing":["k8s"],"present":["go"]},"suggestions":[],"summary":"Solid fit",
"credits_remaining":2,"credits_total":3}`

func TestAnalyzeNormalizesAndReadsCredits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		assert.Equal(t, "guest-1", r.Header.Get("X-Guest-Id"))
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"resume":"r","job_description":"j"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(legacyBody))
	}))
	defer srv.Close()

	c := New(srv.URL, WithGuestID("guest-1"))
	out, err := c.Analyze(context.Background(), "r", "j", "key-1")
	require.NoError(t, err)
	assert.Equal(t, 72.0, out.Display.Score)
	assert.Equal(t, []string{"k8s"}, out.Display.Keywords.Missing)
	require.NotNil(t, out.CreditsRemaining)
	assert.Equal(t, 2, *out.CreditsRemaining)
	require.NotNil(t, out.CreditsTotal)
	assert.Equal(t, 3, *out.CreditsTotal)
}

func TestAnalyzeMapsErrorCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"limit","error_code":"GUEST_LIMIT_REACHED"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Analyze(context.Background(), "r", "j", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "apiErrors.GUEST_LIMIT_REACHED", MessageKey(err))
}

func TestAnalyzeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithAnalyzeTimeout(50*time.Millisecond)).Analyze(context.Background(), "r", "j", "")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "apiErrors.TIMEOUT", MessageKey(err))
}

func TestNestedErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"missing or invalid token"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).FetchSubscription(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "unauthorized", apiErr.Code)
	assert.Equal(t, "missing or invalid token", apiErr.Message)
}

func TestFetchSubscriptionAndSignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/signin":
			_, _ = w.Write([]byte(`{"token":"tok-1","user":{"id":"user-1","email":"a@example.com"}}`))
		case "/api/subscription":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"tier":"pro","analyses_used":4,"analyses_limit":50,"features":["unlimited_history"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	sess, err := c.SignIn(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.User.ID)

	snap, err := c.FetchSubscription(context.Background())
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, snap.Tier)
	assert.Equal(t, 4, snap.AnalysesUsed)
}

func TestParseResumeUploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "cv.pdf", header.Filename)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello","character_count":5,"file_type":"application/pdf"}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL).ParseResume(context.Background(), "cv.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, 5, res.CharacterCount)
	assert.Equal(t, "application/pdf", res.FileType)
}

func TestMessageKeyFallbacks(t *testing.T) {
	assert.Equal(t, "", MessageKey(nil))
	assert.Equal(t, "apiErrors.NETWORK_ERROR", MessageKey(ErrNetwork))
	assert.Equal(t, "apiErrors.UNKNOWN", MessageKey(errors.New("boom")))
}
