package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-tailor/internal/profiles"
	"resume-tailor/internal/subscription"
)

type fakeGateway struct {
	created   []SessionRequest
	sessions  map[string]Session
	customers map[string]string
	portalFor string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]Session{}, customers: map[string]string{}}
}

func (f *fakeGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	f.created = append(f.created, req)
	id := fmt.Sprintf("cs_%d", len(f.created))
	if req.UIMode == "hosted" {
		return Session{ID: id, URL: "https://checkout.example/" + id}, nil
	}
	return Session{ID: id, ClientSecret: id + "_secret"}, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, id string) (Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return Session{}, errors.New("no such session")
	}
	return s, nil
}

func (f *fakeGateway) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	f.portalFor = customerID
	return "https://billing.example/" + customerID, nil
}

func (f *fakeGateway) CustomerUserID(ctx context.Context, customerID string) (string, error) {
	return f.customers[customerID], nil
}

func (f *fakeGateway) ParseEvent(payload []byte, signature string) (Event, error) {
	if signature != "valid" {
		return Event{}, ErrInvalidSignature
	}
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, errors.Join(ErrInvalidSignature, err)
	}
	return Event{ID: raw.ID, Type: raw.Type, Object: raw.Data.Object}, nil
}

type checkoutFixture struct {
	svc      *Service
	gateway  *fakeGateway
	profiles *profiles.MemoryRepo
	now      time.Time
}

func newCheckoutFixture() checkoutFixture {
	now := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)
	gw := newFakeGateway()
	repo := profiles.NewMemoryRepo()
	store := NewMemoryStore()
	svc := &Service{
		Gateway:  gw,
		Profiles: repo,
		Events:   store,
		Claims:   store,
		Config: Config{
			PublishableKey: "pk_test",
			PriceMonthly:   "price_month",
			PriceAnnual:    "price_year",
			UIMode:         "embedded",
			FrontendURL:    "https://app.example/",
		},
		now: func() time.Time { return now },
	}
	return checkoutFixture{svc: svc, gateway: gw, profiles: repo, now: now}
}

func eventPayload(id, typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":%s}}`, id, typ, object))
}

func (f checkoutFixture) deliver(t *testing.T, id, typ, object string) {
	t.Helper()
	_, err := f.svc.HandleWebhook(context.Background(), eventPayload(id, typ, object), "valid")
	require.NoError(t, err)
}

func TestCreateSessionPicksPriceAndMetadata(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()
	_, err := f.profiles.Mutate(ctx, "user-1", func(p *profiles.Profile) error {
		p.Email = "ada@example.com"
		p.StripeCustomerID = "cus_1"
		return nil
	})
	require.NoError(t, err)

	sess, err := f.svc.CreateSession(ctx, Buyer{UserID: "user-1"}, "annual")
	require.NoError(t, err)
	assert.Equal(t, "cs_1_secret", sess.ClientSecret)

	req := f.gateway.created[0]
	assert.Equal(t, "price_year", req.PriceID)
	assert.Equal(t, "cus_1", req.CustomerID)
	assert.Equal(t, "user-1", req.Metadata[metaUserID])
	assert.Equal(t, "https://app.example/checkout/success?session_id={CHECKOUT_SESSION_ID}", req.ReturnURL)

	_, err = f.svc.CreateSession(ctx, Buyer{GuestID: "g-1", Email: "guest@example.com"}, "")
	require.NoError(t, err)
	guestReq := f.gateway.created[1]
	assert.Equal(t, "price_month", guestReq.PriceID)
	assert.Equal(t, "g-1", guestReq.Metadata[metaGuestID])
	assert.Empty(t, guestReq.Metadata[metaUserID])
	assert.Equal(t, "guest@example.com", guestReq.Email)
}

func TestCreateSessionRejectsUnknownPeriod(t *testing.T) {
	f := newCheckoutFixture()
	_, err := f.svc.CreateSession(context.Background(), Buyer{UserID: "user-1"}, "weekly")
	assert.ErrorIs(t, err, ErrInvalidBillingPeriod)
	assert.Empty(t, f.gateway.created)
}

func TestWebhookLifecycle(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()
	_, err := f.profiles.Mutate(ctx, "user-1", func(p *profiles.Profile) error {
		p.AnalysesUsed = 5
		return nil
	})
	require.NoError(t, err)

	f.deliver(t, "evt_1", "checkout.session.completed",
		`{"id":"cs_1","customer":"cus_1","subscription":"sub_1","metadata":{"user_id":"user-1"}}`)
	p, err := f.profiles.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, p.Tier)
	assert.Equal(t, 50, p.AnalysesLimit)
	assert.Equal(t, 0, p.AnalysesUsed)
	assert.Equal(t, "cus_1", p.StripeCustomerID)
	assert.Equal(t, "sub_1", p.StripeSubscriptionID)

	// usage made on pro is not wiped by a later status update
	_, _ = f.profiles.Mutate(ctx, "user-1", func(p *profiles.Profile) error { p.AnalysesUsed = 7; return nil })
	periodEnd := f.now.Add(30 * 24 * time.Hour).Unix()
	f.deliver(t, "evt_2", "customer.subscription.updated",
		fmt.Sprintf(`{"id":"sub_1","customer":"cus_1","status":"active","current_period_end":%d,"cancel_at_period_end":true}`, periodEnd))
	p, _ = f.profiles.Get(ctx, "user-1")
	assert.Equal(t, 7, p.AnalysesUsed)
	assert.True(t, p.CancelAtPeriodEnd)
	require.NotNil(t, p.CurrentPeriodEnd)
	assert.Equal(t, periodEnd, p.CurrentPeriodEnd.Unix())

	f.deliver(t, "evt_3", "invoice.payment_failed", `{"customer":"cus_1","subscription":"sub_1"}`)
	p, _ = f.profiles.Get(ctx, "user-1")
	assert.Equal(t, profiles.StatusPastDue, p.Status)
	assert.Equal(t, subscription.TierPro, p.Tier)

	f.deliver(t, "evt_4", "invoice.payment_succeeded",
		fmt.Sprintf(`{"customer":"cus_1","subscription":"sub_1","lines":{"data":[{"period":{"end":%d}}]}}`, periodEnd))
	p, _ = f.profiles.Get(ctx, "user-1")
	assert.Equal(t, 0, p.AnalysesUsed)
	assert.Equal(t, periodEnd, p.UsageResetsAt.Unix())

	f.deliver(t, "evt_5", "customer.subscription.updated", `{"id":"sub_1","customer":"cus_1","status":"unpaid"}`)
	p, _ = f.profiles.Get(ctx, "user-1")
	assert.Equal(t, subscription.TierFree, p.Tier)
	assert.Equal(t, 5, p.AnalysesLimit)

	f.deliver(t, "evt_6", "customer.subscription.deleted", `{"id":"sub_1","customer":"cus_1","status":"canceled"}`)
	p, _ = f.profiles.Get(ctx, "user-1")
	assert.Equal(t, profiles.StatusCanceled, p.Status)
	assert.Empty(t, p.StripeSubscriptionID)
	assert.Nil(t, p.CurrentPeriodEnd)
}

func TestWebhookDuplicateDeliveryIsIgnored(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()
	obj := `{"customer":"cus_1","subscription":"sub_1","metadata":{"user_id":"user-1"}}`
	f.deliver(t, "evt_1", "checkout.session.completed", obj)
	_, _ = f.profiles.Mutate(ctx, "user-1", func(p *profiles.Profile) error { p.AnalysesUsed = 3; return nil })

	f.deliver(t, "evt_1", "invoice.payment_succeeded", obj)
	p, _ := f.profiles.Get(ctx, "user-1")
	assert.Equal(t, 3, p.AnalysesUsed)
}

func TestWebhookResolvesUserFromCustomerMetadata(t *testing.T) {
	f := newCheckoutFixture()
	f.gateway.customers["cus_9"] = "user-9"
	f.deliver(t, "evt_1", "customer.subscription.updated", `{"id":"sub_9","customer":"cus_9","status":"trialing"}`)

	p, err := f.profiles.Get(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, p.Tier)
	assert.Equal(t, profiles.StatusTrialing, p.Status)
	assert.Equal(t, "cus_9", p.StripeCustomerID)
}

func TestWebhookGuestCheckoutAndUnknownEvents(t *testing.T) {
	f := newCheckoutFixture()
	f.deliver(t, "evt_1", "checkout.session.completed", `{"id":"cs_1","customer":"cus_1","metadata":{"guest_id":"g-1"}}`)
	f.deliver(t, "evt_2", "charge.refunded", `{"id":"ch_1"}`)
	_, err := f.profiles.FindByCustomerID(context.Background(), "cus_1")
	assert.ErrorIs(t, err, profiles.ErrNotFound)
}

func TestWebhookInvalidSignature(t *testing.T) {
	f := newCheckoutFixture()
	_, err := f.svc.HandleWebhook(context.Background(), eventPayload("evt_1", "x", "{}"), "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestClaimGuestCheckout(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()
	f.gateway.sessions["cs_open"] = Session{ID: "cs_open", Status: "open"}
	f.gateway.sessions["cs_done"] = Session{ID: "cs_done", Status: "complete", CustomerID: "cus_7", SubscriptionID: "sub_7",
		Metadata: map[string]string{metaGuestID: "g-1"}}

	_, err := f.svc.Claim(ctx, "user-1", "g-1", "cs_open")
	assert.ErrorIs(t, err, ErrSessionIncomplete)

	p, err := f.svc.Claim(ctx, "user-1", "g-1", "cs_done")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, p.Tier)
	assert.Equal(t, "cus_7", p.StripeCustomerID)

	again, err := f.svc.Claim(ctx, "user-1", "g-1", "cs_done")
	require.NoError(t, err)
	assert.Equal(t, p.Tier, again.Tier)

	_, err = f.svc.Claim(ctx, "user-2", "g-1", "cs_done")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimRejectsSessionOfAnotherBuyer(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()
	f.gateway.sessions["cs_user"] = Session{ID: "cs_user", Status: "complete", CustomerID: "cus_A",
		Metadata: map[string]string{metaUserID: "user-A"}}
	f.gateway.sessions["cs_guest"] = Session{ID: "cs_guest", Status: "complete", CustomerID: "cus_G",
		Metadata: map[string]string{metaGuestID: "g-owner"}}
	f.gateway.sessions["cs_bare"] = Session{ID: "cs_bare", Status: "complete", CustomerID: "cus_X"}

	_, err := f.svc.Claim(ctx, "user-B", "", "cs_user")
	assert.ErrorIs(t, err, ErrSessionNotOwned)
	_, err = f.svc.Claim(ctx, "user-B", "g-other", "cs_guest")
	assert.ErrorIs(t, err, ErrSessionNotOwned)
	_, err = f.svc.Claim(ctx, "user-B", "", "cs_guest")
	assert.ErrorIs(t, err, ErrSessionNotOwned)
	_, err = f.svc.Claim(ctx, "user-B", "g-owner", "cs_bare")
	assert.ErrorIs(t, err, ErrSessionNotOwned)

	_, err = f.profiles.Get(ctx, "user-B")
	assert.ErrorIs(t, err, profiles.ErrNotFound)

	p, err := f.svc.Claim(ctx, "user-A", "", "cs_user")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, p.Tier)
	assert.Equal(t, "cus_A", p.StripeCustomerID)
}

func TestPortalURL(t *testing.T) {
	f := newCheckoutFixture()
	ctx := context.Background()
	_, err := f.svc.PortalURL(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNoCustomer)

	_, _ = f.profiles.Mutate(ctx, "user-1", func(p *profiles.Profile) error { p.StripeCustomerID = "cus_1"; return nil })
	url, err := f.svc.PortalURL(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example/cus_1", url)
}

func TestServiceWithoutGateway(t *testing.T) {
	svc := &Service{Profiles: profiles.NewMemoryRepo()}
	_, err := svc.CreateSession(context.Background(), Buyer{UserID: "u"}, "monthly")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
