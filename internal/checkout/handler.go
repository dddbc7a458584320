package checkout

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resume-tailor/internal/shared/server/middleware"
	"resume-tailor/internal/shared/server/respond"
)

// Stripe events stay well under this.
const maxWebhookBytes = 1 << 20

// Handler wires checkout, billing and webhook routes.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches checkout routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/checkout/config", h.config)
	rg.POST("/checkout/create-session", h.createSession)
	rg.GET("/checkout/session-status", h.sessionStatus)
	rg.POST("/billing/portal", h.portal)
}

// RegisterWebhook attaches the webhook route. It must sit outside auth.
func (h *Handler) RegisterWebhook(rg *gin.RouterGroup) {
	rg.POST("/stripe/webhook", h.webhook)
}

func (h *Handler) config(c *gin.Context) {
	respond.JSON(c, http.StatusOK, gin.H{"publishableKey": h.Svc.Config.PublishableKey})
}

type createSessionRequest struct {
	BillingPeriod string `json:"billingPeriod"`
	Email         string `json:"email" binding:"omitempty,email"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Flat(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
			return
		}
	}

	buyer := Buyer{Email: req.Email}
	if middleware.IsGuest(c) {
		buyer.GuestID = middleware.GuestIDFromContext(c)
	} else {
		buyer.UserID = middleware.UserIDFromContext(c)
		if buyer.Email == "" {
			buyer.Email = middleware.UserEmailFromContext(c)
		}
	}

	sess, err := h.Svc.CreateSession(c.Request.Context(), buyer, req.BillingPeriod)
	if err != nil {
		writeError(c, err, "Failed to create checkout session")
		return
	}
	if sess.ClientSecret != "" {
		respond.JSON(c, http.StatusOK, gin.H{"clientSecret": sess.ClientSecret, "sessionId": sess.ID})
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"url": sess.URL, "sessionId": sess.ID})
}

func (h *Handler) sessionStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Query("session_id"))
	if id == "" {
		respond.Flat(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing session_id")
		return
	}
	sess, err := h.Svc.SessionStatus(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "Failed to fetch checkout session")
		return
	}
	var email any
	if sess.CustomerEmail != "" {
		email = sess.CustomerEmail
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"status":        sess.Status,
		"paymentStatus": sess.PaymentStatus,
		"customerEmail": email,
	})
}

func (h *Handler) portal(c *gin.Context) {
	if middleware.IsGuest(c) {
		respond.Flat(c, http.StatusUnauthorized, "login_required", "Authentication required")
		return
	}
	url, err := h.Svc.PortalURL(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, err, "Failed to open billing portal")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"url": url})
}

func (h *Handler) webhook(c *gin.Context) {
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		respond.Flat(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Missing signature")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		respond.Flat(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload")
		return
	}
	if _, err := h.Svc.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			respond.Flat(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid signature")
			return
		}
		respond.Flat(c, http.StatusInternalServerError, "WEBHOOK_FAILED", "Failed to process event")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"received": true})
}

func writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrInvalidBillingPeriod):
		respond.Flat(c, http.StatusBadRequest, "INVALID_BILLING_PERIOD", "Invalid billing period")
	case errors.Is(err, ErrNoCustomer):
		respond.Flat(c, http.StatusNotFound, "NO_SUBSCRIPTION", "No subscription found")
	case errors.Is(err, ErrSessionIncomplete):
		respond.Flat(c, http.StatusConflict, "SESSION_INCOMPLETE", "Checkout session is not complete")
	case errors.Is(err, ErrSessionNotOwned):
		respond.Flat(c, http.StatusForbidden, "SESSION_NOT_OWNED", "Checkout session belongs to another buyer")
	case errors.Is(err, ErrAlreadyClaimed):
		respond.Flat(c, http.StatusConflict, "SESSION_ALREADY_CLAIMED", "Checkout session already claimed")
	case errors.Is(err, ErrNotConfigured):
		respond.Flat(c, http.StatusServiceUnavailable, "CHECKOUT_UNAVAILABLE", "Checkout is not configured")
	default:
		respond.Flat(c, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", msg)
	}
}

// WriteError maps checkout errors for routes in other packages.
func WriteError(c *gin.Context, err error, msg string) {
	writeError(c, err, msg)
}
