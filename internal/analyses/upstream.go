package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"

	"resume-tailor/internal/shared/metrics"
	"resume-tailor/internal/shared/telemetry"
)

const (
	DefaultScoringTimeout = 30 * time.Second
	scoringBreakerName    = "scoring"
	scoringPath           = "/api/analyze"
)

var (
	ErrUpstreamTimeout     = errors.New("scoring service timed out")
	ErrUpstreamUnavailable = errors.New("scoring service unavailable")
)

// UpstreamError is a non-2xx answer from the scoring service.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("scoring service status %d: %s", e.Status, e.Message)
}

// ScoreRequest is the body sent to the scoring service.
type ScoreRequest struct {
	Resume         string `json:"resume"`
	JobDescription string `json:"job_description"`
}

// Scorer produces a raw analysis payload for a resume and job description.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (json.RawMessage, error)
}

// ScorerConfig configures HTTPScorer.
type ScorerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Breaker trips once MinRequests calls in an interval fail at FailureRatio.
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

// HTTPScorer calls the scoring service over HTTP behind a circuit breaker.
// Timeout bounds the whole call, retries included.
type HTTPScorer struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	timeout time.Duration
}

// NewHTTPScorer builds a scorer for cfg.BaseURL.
func NewHTTPScorer(cfg ScorerConfig) *HTTPScorer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultScoringTimeout
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(1).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			switch r.StatusCode() {
			case http.StatusBadGateway, http.StatusServiceUnavailable:
				return true
			}
			return false
		})
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	settings := gobreaker.Settings{
		Name:    scoringBreakerName,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		// Rejected input is the caller's fault and must not trip the breaker.
		IsSuccessful: func(err error) bool {
			var upErr *UpstreamError
			if errors.As(err, &upErr) {
				return upErr.Status < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			telemetry.Warn("scoring.breaker_state", map[string]any{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	}
	metrics.SetBreakerState(scoringBreakerName, int(gobreaker.StateClosed))

	return &HTTPScorer{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[json.RawMessage](settings),
		timeout: cfg.Timeout,
	}
}

// Score posts req and returns the raw JSON body.
func (s *HTTPScorer) Score(ctx context.Context, req ScoreRequest) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	body, err := s.breaker.Execute(func() (json.RawMessage, error) {
		return s.call(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return body, err
}

func (s *HTTPScorer) call(ctx context.Context, req ScoreRequest) (json.RawMessage, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(scoringPath)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	payload := resp.Body()
	if resp.IsError() {
		doc := gjson.ParseBytes(payload)
		return nil, &UpstreamError{
			Status:  resp.StatusCode(),
			Code:    doc.Get("error_code").String(),
			Message: fallbackString(doc.Get("error").String(), http.StatusText(resp.StatusCode())),
		}
	}
	return json.RawMessage(payload), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
