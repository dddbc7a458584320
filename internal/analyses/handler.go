package analyses

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"resume-tailor/internal/shared/server/middleware"
	"resume-tailor/internal/shared/server/respond"
)

// IdempotencyHeader lets a client retry an analyze call without being charged twice.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.analyze)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analyses/:id/raw", h.getRaw)
	rg.POST("/analyses/:id/favorite", h.toggleFavorite)
	rg.DELETE("/analyses/:id", h.deleteAnalysis)
}

type analyzeRequest struct {
	Resume         string `json:"resume"`
	JobDescription string `json:"job_description"`
	JobTitle       string `json:"job_title" binding:"max=200"`
}

func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Flat(c, http.StatusBadRequest, ErrorCodeInvalidRequest, "No data provided")
		return
	}

	out, err := h.Svc.Analyze(c.Request.Context(), AnalyzeInput{
		UserID:         middleware.UserIDFromContext(c),
		Resume:         req.Resume,
		JobDescription: req.JobDescription,
		JobTitle:       req.JobTitle,
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		writeAnalyzeError(c, err)
		return
	}

	c.Set("analysisId", out.Analysis.ID)
	if out.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out.Body)
}

func writeAnalyzeError(c *gin.Context, err error) {
	var (
		verr   *ValidationError
		limErr *LimitError
		upErr  *UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		respond.Flat(c, http.StatusBadRequest, verr.Code, verr.Message)
	case errors.Is(err, ErrAnalysisInProgress):
		respond.Flat(c, http.StatusConflict, ErrorCodeInProgress, "This analysis is already being processed. Retry shortly.")
	case errors.As(err, &limErr):
		respond.Flat(c, http.StatusTooManyRequests, limErr.Check.Reason.ErrorCode(),
			"You've reached your analysis limit. Upgrade your plan to continue.")
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		respond.Flat(c, http.StatusGatewayTimeout, ErrorCodeUpstreamTimeout, "The analysis took too long. Please try again.")
	case errors.Is(err, ErrUpstreamUnavailable):
		respond.Flat(c, http.StatusServiceUnavailable, ErrorCodeServiceUnavailable, "The analysis service is temporarily unavailable.")
	case errors.As(err, &upErr) && upErr.Status < 500:
		code := upErr.Code
		if code == "" {
			code = ErrorCodeUpstreamFailed
		}
		respond.Flat(c, http.StatusBadRequest, code, upErr.Message)
	case errors.As(err, &upErr), errors.Is(err, ErrMalformedResult):
		respond.Flat(c, http.StatusBadGateway, ErrorCodeUpstreamFailed, "The analysis could not be completed.")
	case errors.Is(err, context.Canceled):
		respond.Flat(c, http.StatusRequestTimeout, ErrorCodeUpstreamTimeout, "request canceled")
	default:
		respond.Flat(c, http.StatusInternalServerError, ErrorCodeInternal, "Server error")
	}
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	analysis, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), analysisID)
	if err != nil {
		writeLookupError(c, err, "failed to fetch analysis")
		return
	}
	respond.JSON(c, http.StatusOK, analysis)
}

func (h *Handler) getRaw(c *gin.Context) {
	raw, err := h.Svc.Raw(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeLookupError(c, err, "failed to fetch raw result")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	if middleware.IsGuest(c) {
		respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
		return
	}

	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	analyses, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}

	resp := make([]Summary, 0, len(analyses))
	for _, a := range analyses {
		resp = append(resp, a.Summary())
	}
	respond.JSON(c, http.StatusOK, gin.H{"analyses": resp, "limit": limit, "offset": offset})
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite"`
}

func (h *Handler) toggleFavorite(c *gin.Context) {
	var req favoriteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}
	analysis, err := h.Svc.ToggleFavorite(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), req.Favorite)
	if err != nil {
		writeLookupError(c, err, "failed to update favorite")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"id": analysis.ID, "isFavorite": analysis.IsFavorite})
}

func (h *Handler) deleteAnalysis(c *gin.Context) {
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		writeLookupError(c, err, "failed to delete analysis")
		return
	}
	c.Status(http.StatusNoContent)
}

func writeLookupError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
