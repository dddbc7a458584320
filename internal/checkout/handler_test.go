package checkout

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newCheckoutRouter(svc *Service, userID string, guest bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(svc)
	h.RegisterWebhook(r.Group("/api"))
	api := r.Group("/api")
	api.Use(func(c *gin.Context) {
		c.Set("userId", userID)
		c.Set("isGuest", guest)
		if guest {
			c.Set("guestId", strings.TrimPrefix(userID, "guest:"))
		}
		c.Next()
	})
	h.RegisterRoutes(api)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCheckoutConfigRoute(t *testing.T) {
	f := newCheckoutFixture()
	resp := serve(newCheckoutRouter(f.svc, "user-1", false), httptest.NewRequest(http.MethodGet, "/api/checkout/config", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"publishableKey":"pk_test"}`, resp.Body.String())
}

func TestCreateSessionRoute(t *testing.T) {
	f := newCheckoutFixture()
	r := newCheckoutRouter(f.svc, "user-1", false)

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/create-session", strings.NewReader(`{"billingPeriod":"monthly"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := serve(r, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"clientSecret":"cs_1_secret","sessionId":"cs_1"}`, resp.Body.String())

	f.svc.Config.UIMode = "hosted"
	req = httptest.NewRequest(http.MethodPost, "/api/checkout/create-session", strings.NewReader(`{"billingPeriod":"annual"}`))
	req.Header.Set("Content-Type", "application/json")
	resp = serve(r, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"url":"https://checkout.example/cs_2","sessionId":"cs_2"}`, resp.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/checkout/create-session", strings.NewReader(`{"billingPeriod":"weekly"}`))
	req.Header.Set("Content-Type", "application/json")
	resp = serve(r, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "INVALID_BILLING_PERIOD")
}

func TestCreateSessionRouteForGuest(t *testing.T) {
	f := newCheckoutFixture()
	r := newCheckoutRouter(f.svc, "guest:g-1", true)
	resp := serve(r, httptest.NewRequest(http.MethodPost, "/api/checkout/create-session", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	if assert.Len(t, f.gateway.created, 1) {
		assert.Equal(t, "g-1", f.gateway.created[0].Metadata[metaGuestID])
	}
}

func TestSessionStatusRoute(t *testing.T) {
	f := newCheckoutFixture()
	f.gateway.sessions["cs_1"] = Session{ID: "cs_1", Status: "complete", PaymentStatus: "paid", CustomerEmail: "a@example.com"}
	r := newCheckoutRouter(f.svc, "user-1", false)

	resp := serve(r, httptest.NewRequest(http.MethodGet, "/api/checkout/session-status?session_id=cs_1", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"complete","paymentStatus":"paid","customerEmail":"a@example.com"}`, resp.Body.String())

	resp = serve(r, httptest.NewRequest(http.MethodGet, "/api/checkout/session-status", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPortalRouteRequiresAccount(t *testing.T) {
	f := newCheckoutFixture()
	resp := serve(newCheckoutRouter(f.svc, "guest:g-1", true), httptest.NewRequest(http.MethodPost, "/api/billing/portal", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = serve(newCheckoutRouter(f.svc, "user-1", false), httptest.NewRequest(http.MethodPost, "/api/billing/portal", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "NO_SUBSCRIPTION")
}

func TestWebhookRoute(t *testing.T) {
	f := newCheckoutFixture()
	r := newCheckoutRouter(f.svc, "", false)
	payload := eventPayload("evt_1", "checkout.session.completed", `{"customer":"cus_1","metadata":{"user_id":"user-1"}}`)

	resp := serve(r, httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "Missing signature")

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "forged")
	resp = serve(r, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "INVALID_SIGNATURE")

	req = httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "valid")
	resp = serve(r, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"received":true}`, resp.Body.String())
}
