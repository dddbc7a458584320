package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-tailor/internal/shared/metrics"
	"resume-tailor/internal/shared/storage/kv"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/shared/util"
	"resume-tailor/internal/usage"
)

const (
	defaultIdempotencyTTL = 10 * time.Minute
	idempotencyKeyFormat  = "app:analyses:idempotency:%s:%s"
	maxIdempotencyKeyLen  = 128
	pendingMarker         = "pending"
)

// UsageLedger is the authoritative allowance check used before and after scoring.
type UsageLedger interface {
	Check(ctx context.Context, userID string) (usage.Check, error)
	Consume(ctx context.Context, userID string) (usage.Check, error)
	Refund(ctx context.Context, userID string) error
}

// LimitError reports a refused analysis together with the usage that refused it.
type LimitError struct {
	Check usage.Check
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("analysis limit reached (%s)", e.Check.Reason)
}

func (e *LimitError) Unwrap() error {
	return usage.ErrLimitReached
}

// AnalyzeInput is one analyze request.
type AnalyzeInput struct {
	UserID         string
	Resume         string
	JobDescription string
	JobTitle       string
	IdempotencyKey string
}

// AnalyzeOutput is the stored analysis plus the response body sent to clients.
type AnalyzeOutput struct {
	Analysis Analysis
	Credits  usage.Check
	// Body is the raw upstream payload with credit fields added.
	Body     json.RawMessage
	Replayed bool
}

// Service contains business logic for analyses.
type Service struct {
	Repo    Repo
	Scorer  Scorer
	Usage   UsageLedger
	Archive *Archive
	// Cache holds idempotent responses; nil disables replay.
	Cache          kv.Store
	IdempotencyTTL time.Duration

	now   func() time.Time
	newID func() string
}

// Analyze validates, scores, charges and stores one analysis. Requests that
// share an idempotency key are charged once: a finished one is replayed and
// one still running is refused with ErrAnalysisInProgress.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeOutput, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return AnalyzeOutput{}, errors.New("userID is required")
	}
	if err := ValidateSubmission(in.Resume, in.JobDescription); err != nil {
		return AnalyzeOutput{}, err
	}

	cacheKey := s.idempotencyKey(in.UserID, in.IdempotencyKey)
	if cacheKey == "" {
		return s.analyze(ctx, in)
	}
	prior, held, err := s.reserve(ctx, cacheKey)
	if err != nil {
		return AnalyzeOutput{}, err
	}
	if prior.Replayed {
		return prior, nil
	}
	out, err := s.analyze(ctx, in)
	if !held {
		return out, err
	}
	if err != nil {
		s.release(ctx, cacheKey)
		return AnalyzeOutput{}, err
	}
	s.remember(ctx, cacheKey, out)
	return out, nil
}

func (s *Service) analyze(ctx context.Context, in AnalyzeInput) (AnalyzeOutput, error) {
	if s.Usage != nil {
		check, err := s.Usage.Check(ctx, in.UserID)
		if err != nil {
			return AnalyzeOutput{}, err
		}
		if !check.Allowed {
			metrics.IncUsageBlocked(string(check.Reason))
			return AnalyzeOutput{}, &LimitError{Check: check}
		}
	}

	start := s.clock()
	metrics.IncAnalysisStarted()
	raw, err := s.Scorer.Score(ctx, ScoreRequest{Resume: in.Resume, JobDescription: in.JobDescription})
	if err != nil {
		metrics.IncAnalysisFailed(failureCode(err))
		return AnalyzeOutput{}, err
	}
	shape, result, err := decodeAndNormalize(raw)
	if err != nil {
		metrics.IncAnalysisFailed(ErrorCodeUpstreamFailed)
		return AnalyzeOutput{}, fmt.Errorf("scoring response: %w", err)
	}

	var credits usage.Check
	if s.Usage != nil {
		credits, err = s.Usage.Consume(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, usage.ErrLimitReached) {
				metrics.IncUsageBlocked(string(credits.Reason))
				return AnalyzeOutput{}, &LimitError{Check: credits}
			}
			return AnalyzeOutput{}, err
		}
	}

	analysis := Analysis{
		ID:             s.id(),
		UserID:         in.UserID,
		JobTitle:       strings.TrimSpace(in.JobTitle),
		ResumeText:     in.Resume,
		JobDescription: in.JobDescription,
		Shape:          shape,
		Score:          result.Score,
		Result:         result,
		CreatedAt:      s.clock().UTC(),
	}
	if analysis.JobTitle == "" {
		analysis.JobTitle = DeriveJobTitle(in.JobDescription)
	}

	if key, err := s.Archive.Save(ctx, in.UserID, analysis.ID, raw); err != nil {
		telemetry.Warn("analysis.archive_failed", map[string]any{
			"analysis_id": analysis.ID,
			"error":       err.Error(),
		})
	} else {
		analysis.RawKey = key
	}

	if err := s.Repo.Create(ctx, analysis); err != nil {
		if s.Usage != nil {
			if rerr := s.Usage.Refund(context.WithoutCancel(ctx), in.UserID); rerr != nil {
				telemetry.Error("analysis.refund_failed", map[string]any{
					"analysis_id": analysis.ID,
					"user_id":     in.UserID,
					"error":       rerr.Error(),
				})
			}
		}
		metrics.IncAnalysisFailed(ErrorCodeStorage)
		return AnalyzeOutput{}, fmt.Errorf("store analysis: %w", err)
	}

	body, err := responseBody(raw, analysis.ID, credits)
	if err != nil {
		return AnalyzeOutput{}, err
	}
	out := AnalyzeOutput{Analysis: analysis, Credits: credits, Body: body}

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDuration(s.clock().Sub(start))
	telemetry.Info("analysis.completed", map[string]any{
		"analysis_id":       analysis.ID,
		"shape":             string(shape),
		"score":             analysis.Score,
		"credits_remaining": credits.Remaining,
	})
	return out, nil
}

// Get returns an analysis owned by userID.
func (s *Service) Get(ctx context.Context, userID, analysisID string) (Analysis, error) {
	a, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if a.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

// List returns a page of the user's history.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// ToggleFavorite flips the favorite flag, or sets it when favorite is non-nil.
func (s *Service) ToggleFavorite(ctx context.Context, userID, analysisID string, favorite *bool) (Analysis, error) {
	a, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	next := !a.IsFavorite
	if favorite != nil {
		next = *favorite
	}
	return s.Repo.SetFavorite(ctx, userID, analysisID, next)
}

// Delete removes an analysis owned by userID.
func (s *Service) Delete(ctx context.Context, userID, analysisID string) error {
	return s.Repo.Delete(ctx, userID, analysisID)
}

// Raw returns the archived upstream payload of an analysis.
func (s *Service) Raw(ctx context.Context, userID, analysisID string) (json.RawMessage, error) {
	a, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return nil, err
	}
	return s.Archive.Load(ctx, a.RawKey)
}

type cachedResponse struct {
	Analysis Analysis        `json:"analysis"`
	Credits  usage.Check     `json:"credits"`
	Body     json.RawMessage `json:"body"`
}

func (s *Service) idempotencyKey(userID, key string) string {
	key = strings.TrimSpace(key)
	if s.Cache == nil || key == "" || len(key) > maxIdempotencyKeyLen {
		return ""
	}
	return fmt.Sprintf(idempotencyKeyFormat, util.HashUserKey(userID), key)
}

// reserve claims cacheKey with a pending marker before any credit is
// checked. A stored response is returned with Replayed set; a pending marker
// held by another request yields ErrAnalysisInProgress. held is false when
// the cache is unreachable and the request runs without replay protection.
func (s *Service) reserve(ctx context.Context, cacheKey string) (prior AnalyzeOutput, held bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := kv.SetNX(ctx, s.Cache, cacheKey, pendingMarker, s.idempotencyTTL())
		if err != nil {
			telemetry.Warn("analysis.idempotency_reserve_failed", map[string]any{"error": err.Error()})
			return AnalyzeOutput{}, false, nil
		}
		if ok {
			return AnalyzeOutput{}, true, nil
		}
		val, found, err := s.Cache.Get(ctx, cacheKey)
		if err != nil {
			telemetry.Warn("analysis.idempotency_reserve_failed", map[string]any{"error": err.Error()})
			return AnalyzeOutput{}, false, nil
		}
		if !found {
			// Released or expired between the two calls.
			continue
		}
		if val == pendingMarker {
			return AnalyzeOutput{}, false, ErrAnalysisInProgress
		}
		var cached cachedResponse
		if err := json.Unmarshal([]byte(val), &cached); err != nil {
			return AnalyzeOutput{}, false, ErrAnalysisInProgress
		}
		return AnalyzeOutput{Analysis: cached.Analysis, Credits: cached.Credits, Body: cached.Body, Replayed: true}, false, nil
	}
	return AnalyzeOutput{}, false, ErrAnalysisInProgress
}

// release drops the pending marker so a failed request can be retried.
func (s *Service) release(ctx context.Context, cacheKey string) {
	if err := s.Cache.Clear(context.WithoutCancel(ctx), cacheKey); err != nil {
		telemetry.Warn("analysis.idempotency_release_failed", map[string]any{"error": err.Error()})
	}
}

func (s *Service) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return defaultIdempotencyTTL
}

func (s *Service) remember(ctx context.Context, cacheKey string, out AnalyzeOutput) {
	payload, err := json.Marshal(cachedResponse{Analysis: out.Analysis, Credits: out.Credits, Body: out.Body})
	if err != nil {
		s.release(ctx, cacheKey)
		return
	}
	if err := s.Cache.Set(context.WithoutCancel(ctx), cacheKey, string(payload), s.idempotencyTTL()); err != nil {
		telemetry.Warn("analysis.idempotency_store_failed", map[string]any{"error": err.Error()})
	}
}

// responseBody adds credit fields to the upstream payload.
func responseBody(raw json.RawMessage, analysisID string, credits usage.Check) (json.RawMessage, error) {
	body := map[string]any{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("scoring response: %w", ErrMalformedResult)
	}
	body["analysis_id"] = analysisID
	body["credits_remaining"] = credits.Remaining
	body["credits_total"] = credits.Limit
	return json.Marshal(body)
}

func failureCode(err error) string {
	var upErr *UpstreamError
	switch {
	case errors.Is(err, ErrUpstreamTimeout):
		return ErrorCodeUpstreamTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return ErrorCodeServiceUnavailable
	case errors.As(err, &upErr) && upErr.Code != "":
		return upErr.Code
	default:
		return ErrorCodeUpstreamFailed
	}
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Service) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}
