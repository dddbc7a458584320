package account

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-tailor/internal/checkout"
	"resume-tailor/internal/profiles"
	"resume-tailor/internal/shared/server/middleware"
	"resume-tailor/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/subscription", h.getSubscription)
	rg.POST("/subscription/claim", h.claim)
	rg.POST("/account/claim-guest", h.claim)
}

func (h *Handler) getSubscription(c *gin.Context) {
	snap, err := h.Svc.Subscription(c.Request.Context(), Identity{
		UserID:  middleware.UserIDFromContext(c),
		Email:   middleware.UserEmailFromContext(c),
		Name:    middleware.UserNameFromContext(c),
		GuestID: middleware.GuestIDFromContext(c),
		IsGuest: middleware.IsGuest(c),
	})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load subscription", nil)
		return
	}
	respond.OK(c, snap)
}

type claimRequest struct {
	SessionID         string `json:"sessionId"`
	GuestAnalysesUsed int    `json:"guestAnalysesUsed" binding:"min=0"`
}

func (h *Handler) claim(c *gin.Context) {
	if middleware.IsGuest(c) || strings.TrimSpace(middleware.UserIDFromContext(c)) == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}

	var req claimRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
			return
		}
	}

	guestID := middleware.GuestIDFromContext(c)
	if guestID == "" && req.SessionID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "nothing to claim", []map[string]string{
			{"field": "X-Guest-Id", "issue": "required"},
		})
		return
	}

	res, err := h.Svc.Claim(c.Request.Context(), ClaimInput{
		UserID:            middleware.UserIDFromContext(c),
		GuestID:           guestID,
		SessionID:         req.SessionID,
		GuestAnalysesUsed: req.GuestAnalysesUsed,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidClaim):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid claim", nil)
		case errors.Is(err, profiles.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "account not found", nil)
		case req.SessionID != "":
			checkout.WriteError(c, err, "Failed to claim checkout session")
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to claim guest data", nil)
		}
		return
	}
	respond.OK(c, res)
}
