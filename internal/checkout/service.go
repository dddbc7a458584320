package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"resume-tailor/internal/profiles"
	"resume-tailor/internal/shared/metrics"
	"resume-tailor/internal/shared/telemetry"
	"resume-tailor/internal/subscription"
)

const (
	metaUserID  = "user_id"
	metaGuestID = "guest_id"

	BillingMonthly = "monthly"
	BillingAnnual  = "annual"

	sessionComplete = "complete"
)

var (
	ErrNotConfigured        = errors.New("checkout not configured")
	ErrInvalidBillingPeriod = errors.New("invalid billing period")
	ErrNoCustomer           = errors.New("no billing customer for account")
	ErrSessionIncomplete    = errors.New("checkout session not complete")
	ErrSessionNotOwned      = errors.New("checkout session belongs to another buyer")
)

// Config carries the Stripe settings the service needs.
type Config struct {
	PublishableKey string
	PriceMonthly   string
	PriceAnnual    string
	UIMode         string
	FrontendURL    string
}

// Service drives checkout and applies subscription lifecycle events.
type Service struct {
	Gateway  Gateway
	Profiles profiles.Repo
	Events   EventStore
	Claims   ClaimStore
	Config   Config
	now      func() time.Time
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// Buyer identifies who is starting a checkout.
type Buyer struct {
	UserID  string
	GuestID string
	Email   string
}

// CreateSession opens a subscription checkout for the requested billing period.
func (s *Service) CreateSession(ctx context.Context, buyer Buyer, billingPeriod string) (Session, error) {
	if s.Gateway == nil {
		return Session{}, ErrNotConfigured
	}
	var price string
	switch strings.ToLower(strings.TrimSpace(billingPeriod)) {
	case "", BillingMonthly:
		price = s.Config.PriceMonthly
	case BillingAnnual:
		price = s.Config.PriceAnnual
	default:
		return Session{}, ErrInvalidBillingPeriod
	}
	if price == "" {
		return Session{}, fmt.Errorf("%w: no price for %s", ErrNotConfigured, billingPeriod)
	}

	base := strings.TrimRight(s.Config.FrontendURL, "/")
	req := SessionRequest{
		PriceID:   price,
		UIMode:    s.Config.UIMode,
		ReturnURL: base + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL: base + "/pricing",
		Email:     strings.TrimSpace(buyer.Email),
		Metadata:  map[string]string{},
	}
	if buyer.UserID != "" {
		req.Metadata[metaUserID] = buyer.UserID
		if p, err := s.Profiles.Get(ctx, buyer.UserID); err == nil {
			req.CustomerID = p.StripeCustomerID
			if req.Email == "" {
				req.Email = p.Email
			}
		} else if !errors.Is(err, profiles.ErrNotFound) {
			return Session{}, err
		}
	}
	if buyer.GuestID != "" {
		req.Metadata[metaGuestID] = buyer.GuestID
	}

	sess, err := s.Gateway.CreateSession(ctx, req)
	if err != nil {
		return Session{}, err
	}
	telemetry.Info("checkout.session_created", map[string]any{
		"session_id": sess.ID,
		"user_id":    buyer.UserID,
		"guest":      buyer.UserID == "",
		"period":     billingPeriod,
	})
	return sess, nil
}

// SessionStatus reports the state of a checkout session.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (Session, error) {
	if s.Gateway == nil {
		return Session{}, ErrNotConfigured
	}
	return s.Gateway.GetSession(ctx, sessionID)
}

// PortalURL returns a billing portal link for the account's Stripe customer.
func (s *Service) PortalURL(ctx context.Context, userID string) (string, error) {
	if s.Gateway == nil {
		return "", ErrNotConfigured
	}
	p, err := s.Profiles.Get(ctx, userID)
	if errors.Is(err, profiles.ErrNotFound) {
		return "", ErrNoCustomer
	}
	if err != nil {
		return "", err
	}
	if p.StripeCustomerID == "" {
		return "", ErrNoCustomer
	}
	return s.Gateway.PortalURL(ctx, p.StripeCustomerID, strings.TrimRight(s.Config.FrontendURL, "/")+"/settings/billing")
}

// Claim binds a completed checkout session to userID and upgrades the
// account. The session must have been started by the same account or by the
// guest identity the caller presents. Claiming the same session twice as the
// same user is a no-op.
func (s *Service) Claim(ctx context.Context, userID, guestID, sessionID string) (profiles.Profile, error) {
	if s.Gateway == nil {
		return profiles.Profile{}, ErrNotConfigured
	}
	sess, err := s.Gateway.GetSession(ctx, sessionID)
	if err != nil {
		return profiles.Profile{}, err
	}
	if sess.Status != sessionComplete {
		return profiles.Profile{}, ErrSessionIncomplete
	}
	if !ownsSession(sess, userID, guestID) {
		telemetry.Warn("checkout.claim_rejected", map[string]any{"session_id": sessionID, "user_id": userID})
		return profiles.Profile{}, ErrSessionNotOwned
	}
	first, err := s.Claims.Claim(ctx, sessionID, userID, sess.CustomerID)
	if err != nil {
		return profiles.Profile{}, err
	}
	if !first {
		return s.Profiles.Get(ctx, userID)
	}
	p, err := s.activate(ctx, userID, sess.CustomerID, sess.SubscriptionID, profiles.StatusActive, nil, false)
	if err != nil {
		return profiles.Profile{}, err
	}
	telemetry.Info("checkout.session_claimed", map[string]any{"session_id": sessionID, "user_id": userID})
	return p, nil
}

// ownsSession reports whether the buyer recorded on the session is the caller.
// Sessions without a recorded buyer cannot be attributed and are refused.
func ownsSession(sess Session, userID, guestID string) bool {
	if owner := sess.Metadata[metaUserID]; owner != "" {
		return owner == userID
	}
	if owner := sess.Metadata[metaGuestID]; owner != "" {
		return guestID != "" && owner == guestID
	}
	return false
}

// HandleWebhook verifies and applies one webhook delivery. Redeliveries of an
// event that was already applied are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (Event, error) {
	if s.Gateway == nil {
		return Event{}, ErrNotConfigured
	}
	evt, err := s.Gateway.ParseEvent(payload, signature)
	if err != nil {
		return Event{}, err
	}

	first, err := s.Events.Begin(ctx, evt.ID, evt.Type)
	if err != nil {
		return evt, err
	}
	if !first {
		metrics.IncWebhookEvent(evt.Type, "duplicate")
		return evt, nil
	}

	outcome, err := s.apply(ctx, evt)
	if err != nil {
		if ferr := s.Events.Forget(context.WithoutCancel(ctx), evt.ID); ferr != nil {
			telemetry.Error("checkout.event_forget_failed", map[string]any{"event_id": evt.ID, "error": ferr.Error()})
		}
		metrics.IncWebhookEvent(evt.Type, "error")
		telemetry.Error("checkout.webhook_failed", map[string]any{"event_id": evt.ID, "type": evt.Type, "error": err.Error()})
		return evt, err
	}
	metrics.IncWebhookEvent(evt.Type, outcome)
	telemetry.Info("checkout.webhook", map[string]any{"event_id": evt.ID, "type": evt.Type, "outcome": outcome})
	return evt, nil
}

func (s *Service) apply(ctx context.Context, evt Event) (string, error) {
	obj := gjson.ParseBytes(evt.Object)
	switch evt.Type {
	case "checkout.session.completed":
		userID := obj.Get("metadata." + metaUserID).String()
		if userID == "" {
			// Guest checkout; the account is linked when the buyer signs in and claims it.
			return "unclaimed", nil
		}
		_, err := s.activate(ctx, userID, obj.Get("customer").String(), obj.Get("subscription").String(), profiles.StatusActive, nil, false)
		return "applied", err

	case "customer.subscription.updated":
		userID, err := s.resolveUser(ctx, obj)
		if err != nil || userID == "" {
			return "unmatched", err
		}
		status := obj.Get("status").String()
		periodEnd := unixTime(obj.Get("current_period_end"))
		cancelAtEnd := obj.Get("cancel_at_period_end").Bool()
		if status == profiles.StatusActive || status == profiles.StatusTrialing {
			_, err = s.activate(ctx, userID, obj.Get("customer").String(), obj.Get("id").String(), status, periodEnd, cancelAtEnd)
		} else {
			_, err = s.downgrade(ctx, userID, status, periodEnd)
		}
		return "applied", err

	case "customer.subscription.deleted":
		userID, err := s.resolveUser(ctx, obj)
		if err != nil || userID == "" {
			return "unmatched", err
		}
		_, err = s.downgrade(ctx, userID, profiles.StatusCanceled, nil)
		return "applied", err

	case "invoice.payment_failed":
		userID, err := s.resolveUser(ctx, obj)
		if err != nil || userID == "" {
			return "unmatched", err
		}
		_, err = s.Profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
			p.Status = profiles.StatusPastDue
			return nil
		})
		telemetry.Warn("checkout.payment_failed", map[string]any{"user_id": userID})
		return "applied", err

	case "invoice.payment_succeeded":
		if obj.Get("subscription").String() == "" {
			return "ignored", nil
		}
		userID, err := s.resolveUser(ctx, obj)
		if err != nil || userID == "" {
			return "unmatched", err
		}
		periodEnd := unixTime(obj.Get("lines.data.0.period.end"))
		_, err = s.Profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
			p.AnalysesUsed = 0
			if periodEnd != nil {
				p.CurrentPeriodEnd = periodEnd
				p.UsageResetsAt = *periodEnd
			} else {
				p.UsageResetsAt = s.clock().Add(profiles.UsagePeriod)
			}
			return nil
		})
		return "applied", err
	}
	return "ignored", nil
}

// resolveUser finds the account behind an event object: subscription
// metadata first, then the stored customer id, then the customer's metadata.
func (s *Service) resolveUser(ctx context.Context, obj gjson.Result) (string, error) {
	if id := obj.Get("metadata." + metaUserID).String(); id != "" {
		return id, nil
	}
	if id := obj.Get("subscription_details.metadata." + metaUserID).String(); id != "" {
		return id, nil
	}
	customerID := obj.Get("customer").String()
	if customerID == "" {
		return "", nil
	}
	p, err := s.Profiles.FindByCustomerID(ctx, customerID)
	if err == nil {
		return p.ID, nil
	}
	if !errors.Is(err, profiles.ErrNotFound) {
		return "", err
	}
	return s.Gateway.CustomerUserID(ctx, customerID)
}

func (s *Service) activate(ctx context.Context, userID, customerID, subscriptionID, status string, periodEnd *time.Time, cancelAtEnd bool) (profiles.Profile, error) {
	return s.Profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
		if !subscription.IsPaid(p.Tier) {
			p.AnalysesUsed = 0
			p.UsageResetsAt = s.clock().Add(profiles.UsagePeriod)
		}
		if p.Tier != subscription.TierCommercial {
			p.Tier = subscription.TierPro
			p.AnalysesLimit = subscription.LimitFor(subscription.TierPro)
		}
		p.Status = status
		if customerID != "" {
			p.StripeCustomerID = customerID
		}
		if subscriptionID != "" {
			p.StripeSubscriptionID = subscriptionID
		}
		if periodEnd != nil {
			p.CurrentPeriodEnd = periodEnd
			p.UsageResetsAt = *periodEnd
		}
		p.CancelAtPeriodEnd = cancelAtEnd
		return nil
	})
}

func (s *Service) downgrade(ctx context.Context, userID, status string, periodEnd *time.Time) (profiles.Profile, error) {
	return s.Profiles.Mutate(ctx, userID, func(p *profiles.Profile) error {
		p.Tier = subscription.TierFree
		p.AnalysesLimit = subscription.LimitFor(subscription.TierFree)
		p.Status = status
		p.CancelAtPeriodEnd = false
		if status == profiles.StatusCanceled {
			p.StripeSubscriptionID = ""
			p.CurrentPeriodEnd = nil
		} else if periodEnd != nil {
			p.CurrentPeriodEnd = periodEnd
		}
		return nil
	})
}

func unixTime(r gjson.Result) *time.Time {
	if !r.Exists() || r.Int() <= 0 {
		return nil
	}
	t := time.Unix(r.Int(), 0).UTC()
	return &t
}
