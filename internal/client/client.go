// Package client is a Go SDK for the resume tailor API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"resume-tailor/internal/account"
	"resume-tailor/internal/analyses"
	"resume-tailor/internal/auth"
	"resume-tailor/internal/extract"
	"resume-tailor/internal/subscription"
	"resume-tailor/internal/usage"
)

// AnalyzeTimeout bounds one analyze call end to end.
const AnalyzeTimeout = 30 * time.Second

const messageKeyPrefix = "apiErrors."

var (
	ErrTimeout = errors.New("request timed out")
	ErrNetwork = errors.New("network error")
)

// APIError is a non-2xx response. Code is the server's error code when it
// sent one.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// MessageKey maps err to the localized message key shown to users.
func MessageKey(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr) && apiErr.Code != "":
		return messageKeyPrefix + apiErr.Code
	case errors.Is(err, ErrTimeout):
		return messageKeyPrefix + analyses.ErrorCodeUpstreamTimeout
	case errors.Is(err, ErrNetwork):
		return messageKeyPrefix + "NETWORK_ERROR"
	default:
		return messageKeyPrefix + "UNKNOWN"
	}
}

type Client struct {
	http    *resty.Client
	timeout time.Duration
}

type Option func(*Client)

// WithToken authenticates requests as a signed-in user.
func WithToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.SetAuthToken(token)
		}
	}
}

// WithGuestID identifies an anonymous caller.
func WithGuestID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.http.SetHeader("X-Guest-Id", id)
		}
	}
}

// WithAnalyzeTimeout overrides AnalyzeTimeout.
func WithAnalyzeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")+"/api").
			SetHeader("Accept", "application/json"),
		timeout: AnalyzeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token, for example after sign-in.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// AnalyzeResult carries the raw response, its normalized display form and
// the credit counters when the server reported them.
type AnalyzeResult struct {
	Raw              json.RawMessage
	Display          analyses.DisplayResult
	CreditsRemaining *int
	CreditsTotal     *int
	Replayed         bool
}

// Analyze submits a resume and job description. idempotencyKey may be empty;
// when set, a retry after a timeout will not be charged twice.
func (c *Client) Analyze(ctx context.Context, resume, jobDescription, idempotencyKey string) (AnalyzeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"resume": resume, "job_description": jobDescription})
	if idempotencyKey != "" {
		req.SetHeader(analyses.IdempotencyHeader, idempotencyKey)
	}
	resp, err := req.Post("/analyze")
	if err := checkResponse(resp, err); err != nil {
		return AnalyzeResult{}, err
	}

	raw := resp.Body()
	out := AnalyzeResult{
		Raw:      json.RawMessage(raw),
		Display:  analyses.Transform(raw),
		Replayed: resp.Header().Get("Idempotent-Replayed") == "true",
	}
	doc := gjson.ParseBytes(raw)
	if v := doc.Get("credits_remaining"); v.Exists() {
		n := int(v.Int())
		out.CreditsRemaining = &n
	}
	if v := doc.Get("credits_total"); v.Exists() {
		n := int(v.Int())
		out.CreditsTotal = &n
	}
	return out, nil
}

// ParseResume uploads a PDF or DOCX file for text extraction.
func (c *Client) ParseResume(ctx context.Context, fileName string, data []byte) (extract.Result, error) {
	var out extract.Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", fileName, bytes.NewReader(data)).
		SetResult(&out).
		Post("/parse-resume")
	return out, checkResponse(resp, err)
}

// FetchSubscription implements subscription.Fetcher.
func (c *Client) FetchSubscription(ctx context.Context) (subscription.Snapshot, error) {
	var out subscription.Snapshot
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/subscription")
	return out, checkResponse(resp, err)
}

func (c *Client) Usage(ctx context.Context) (usage.Check, error) {
	var out usage.Check
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/usage")
	return out, checkResponse(resp, err)
}

// Claim links guest activity, and optionally a completed checkout session, to
// the signed-in account.
func (c *Client) Claim(ctx context.Context, sessionID string, guestAnalysesUsed int) (account.ClaimResult, error) {
	var out account.ClaimResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"sessionId": sessionID, "guestAnalysesUsed": guestAnalysesUsed}).
		SetResult(&out).
		Post("/subscription/claim")
	return out, checkResponse(resp, err)
}

type CheckoutSession struct {
	ClientSecret string `json:"clientSecret,omitempty"`
	SessionID    string `json:"sessionId"`
	URL          string `json:"url,omitempty"`
}

type SessionStatus struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	CustomerEmail string `json:"customerEmail"`
}

func (c *Client) CheckoutPublishableKey(ctx context.Context) (string, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/checkout/config")
	if err := checkResponse(resp, err); err != nil {
		return "", err
	}
	return gjson.GetBytes(resp.Body(), "publishableKey").String(), nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, billingPeriod, email string) (CheckoutSession, error) {
	var out CheckoutSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"billingPeriod": billingPeriod, "email": email}).
		SetResult(&out).
		Post("/checkout/create-session")
	return out, checkResponse(resp, err)
}

func (c *Client) CheckoutSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	var out SessionStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("session_id", sessionID).
		SetResult(&out).
		Get("/checkout/session-status")
	return out, checkResponse(resp, err)
}

func (c *Client) BillingPortalURL(ctx context.Context) (string, error) {
	resp, err := c.http.R().SetContext(ctx).Post("/billing/portal")
	if err := checkResponse(resp, err); err != nil {
		return "", err
	}
	return gjson.GetBytes(resp.Body(), "url").String(), nil
}

// SignIn authenticates and switches the client to the issued token.
func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	return c.authenticate(ctx, "/auth/signin", map[string]string{"email": email, "password": password})
}

// SignUp creates an account and switches the client to the issued token.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (auth.Session, error) {
	return c.authenticate(ctx, "/auth/signup", map[string]string{"email": email, "password": password, "fullName": fullName})
}

func (c *Client) authenticate(ctx context.Context, path string, body map[string]string) (auth.Session, error) {
	var out auth.Session
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post(path)
	if err := checkResponse(resp, err); err != nil {
		return auth.Session{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Post("/auth/signout")
	if err := checkResponse(resp, err); err != nil {
		return err
	}
	c.http.SetAuthToken("")
	return nil
}

// checkResponse turns transport failures and non-2xx responses into errors.
// Both the flat {error, error_code} and nested {error:{code,message}} bodies
// are understood.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		var netErr net.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		case errors.Is(err, context.Canceled):
			return err
		default:
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}
	if !resp.IsError() {
		return nil
	}

	doc := gjson.ParseBytes(resp.Body())
	apiErr := &APIError{Status: resp.StatusCode()}
	if nested := doc.Get("error"); nested.IsObject() {
		apiErr.Code = nested.Get("code").String()
		apiErr.Message = nested.Get("message").String()
	} else {
		apiErr.Code = doc.Get("error_code").String()
		apiErr.Message = nested.String()
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode())
	}
	return apiErr
}

var _ subscription.Fetcher = (*Client)(nil)
