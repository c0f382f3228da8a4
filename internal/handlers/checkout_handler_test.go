package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/payment"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubFlow struct {
	checkoutIn services.CheckoutInput
	callbackIn services.CallbackInput
	res        *services.CheckoutResult
	err        error
}

func (s *stubFlow) Quote(_ context.Context, _ string, _, _ uuid.UUID) (*services.CheckoutResult, error) {
	return s.res, s.err
}

func (s *stubFlow) Checkout(_ context.Context, in services.CheckoutInput) (*services.CheckoutResult, error) {
	s.checkoutIn = in
	return s.res, s.err
}

func (s *stubFlow) HandleCallback(_ context.Context, in services.CallbackInput) (*services.CheckoutResult, error) {
	s.callbackIn = in
	return s.res, s.err
}

type stubListings struct {
	renewErr error
}

func (s *stubListings) ListSubmissions(context.Context, string, uuid.UUID, int, int) ([]models.ProductSubmission, int64, error) {
	return nil, 0, nil
}

func (s *stubListings) RenewAd(_ context.Context, _ string, _, id uuid.UUID) (*models.ProductSubmission, error) {
	if s.renewErr != nil {
		return nil, s.renewErr
	}
	return &models.ProductSubmission{ID: id, Status: models.SubmissionPending}, nil
}

type stubPlans struct{}

func (stubPlans) GetActive(context.Context, string, uuid.UUID) (*models.Subscription, error) {
	return nil, services.ErrNoActivePlan
}

type stubVendors struct {
	verified bool
}

func (s stubVendors) IsVerifiedVendor(context.Context, string, uuid.UUID) (bool, error) {
	return s.verified, nil
}

func testRegistry() *tenant.Registry {
	r := tenant.NewRegistry("NGN")
	r.Register(&tenant.MarketConfig{MarketID: "lagos", Currency: "NGN"})
	r.Register(&tenant.MarketConfig{MarketID: "accra", Currency: "GHS", Features: map[string]bool{tenant.FeatureRequireKYC: true}})
	return r
}

func newCheckoutApp(flow *stubFlow, listings *stubListings, verified bool) *fiber.App {
	cfg := &config.Config{JWTSecret: testSecret}
	registry := testRegistry()
	h := NewCheckoutHandler(flow, listings, stubPlans{}, stubVendors{verified: verified}, registry)

	app := fiber.New()
	app.Use(middleware.MarketMiddleware(registry))
	api := app.Group("/api", middleware.JWTProtected(cfg))
	api.Get("/entitlements", h.Entitlement)
	api.Post("/checkout", h.Checkout)
	api.Post("/payments/callback", h.PaymentCallback)
	api.Post("/submissions/:id/renew", h.RenewAd)
	api.Get("/subscriptions/me", h.MySubscription)
	return app
}

func token(t *testing.T, market string, userID uuid.UUID) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       userID.String(),
		"email":     "ada@example.com",
		"market_id": market,
		"role":      models.RoleVendor,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func request(t *testing.T, app *fiber.App, method, path, market, bearer string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Market-ID", market)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func checkoutBody() map[string]interface{} {
	return map[string]interface{}{
		"package_id": uuid.New().String(),
		"attempt_id": "attempt-1",
		"submission": map[string]interface{}{
			"title":       "Oak table",
			"description": "Solid oak, seats six",
			"category":    "furniture",
			"price":       "45000",
		},
	}
}

func TestCheckout_PublishedReturnsCreated(t *testing.T) {
	user := uuid.New()
	flow := &stubFlow{res: &services.CheckoutResult{
		Status:     services.CheckoutPublished,
		Submission: &models.ProductSubmission{ID: uuid.New(), Status: models.SubmissionPending},
	}}
	app := newCheckoutApp(flow, &stubListings{}, false)

	resp, body := request(t, app, http.MethodPost, "/api/checkout", "lagos", token(t, "lagos", user), checkoutBody())
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, services.CheckoutPublished, body["status"])
	assert.Equal(t, user, flow.checkoutIn.UserID)
	assert.Equal(t, "lagos", flow.checkoutIn.MarketID)
	assert.Equal(t, "ada@example.com", flow.checkoutIn.Email)
	assert.Equal(t, "Oak table", flow.checkoutIn.Draft.Title)
}

func TestCheckout_ValidationErrors(t *testing.T) {
	app := newCheckoutApp(&stubFlow{}, &stubListings{}, false)
	in := checkoutBody()
	delete(in, "attempt_id")

	resp, body := request(t, app, http.MethodPost, "/api/checkout", "lagos", token(t, "lagos", uuid.New()), in)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "attempt_id")
}

func TestCheckout_KYCGate(t *testing.T) {
	user := uuid.New()
	flow := &stubFlow{res: &services.CheckoutResult{Status: services.CheckoutPublished}}

	resp, _ := request(t, newCheckoutApp(flow, &stubListings{}, false), http.MethodPost, "/api/checkout", "accra", token(t, "accra", user), checkoutBody())
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = request(t, newCheckoutApp(flow, &stubListings{}, true), http.MethodPost, "/api/checkout", "accra", token(t, "accra", user), checkoutBody())
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		res  *services.CheckoutResult
		err  error
		want int
	}{
		{"blocked", &services.CheckoutResult{Decision: &entitlement.Decision{IsFreeLimitReached: true}, Message: "limit"}, services.ErrPublishBlocked, fiber.StatusConflict},
		{"promo", &services.CheckoutResult{Message: "expired"}, services.ErrPromoRejected, fiber.StatusBadRequest},
		{"content", nil, &services.ContentRejectedError{Reason: services.ReasonURL, Message: "no links"}, fiber.StatusUnprocessableEntity},
		{"package", nil, services.ErrPackageNotFound, fiber.StatusNotFound},
		{"gateway", nil, services.ErrGatewayUnavailable, fiber.StatusServiceUnavailable},
		{"store", nil, assert.AnError, fiber.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newCheckoutApp(&stubFlow{res: tt.res, err: tt.err}, &stubListings{}, false)
			resp, body := request(t, app, http.MethodPost, "/api/checkout", "lagos", token(t, "lagos", uuid.New()), checkoutBody())
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, true, body["error"])
		})
	}
}

func TestPaymentCallback_StatusCodes(t *testing.T) {
	user := uuid.New()
	tests := []struct {
		status string
		want   int
	}{
		{services.CheckoutPublished, fiber.StatusCreated},
		{services.CheckoutCancelled, fiber.StatusOK},
		{services.CheckoutVerificationFailed, fiber.StatusPaymentRequired},
	}
	for _, tt := range tests {
		flow := &stubFlow{res: &services.CheckoutResult{Status: tt.status}}
		app := newCheckoutApp(flow, &stubListings{}, false)
		resp, body := request(t, app, http.MethodPost, "/api/payments/callback", "lagos", token(t, "lagos", user),
			map[string]string{"reference": "mkt_abc", "status": "success"})
		assert.Equal(t, tt.want, resp.StatusCode, tt.status)
		assert.Equal(t, tt.status, body["status"])
		assert.Equal(t, "mkt_abc", flow.callbackIn.Reference)
		assert.Equal(t, user, flow.callbackIn.UserID)
	}
}

func TestTokenFromOtherMarketIsRejected(t *testing.T) {
	app := newCheckoutApp(&stubFlow{}, &stubListings{}, false)
	resp, _ := request(t, app, http.MethodGet, "/api/subscriptions/me", "lagos", token(t, "accra", uuid.New()), nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = request(t, app, http.MethodGet, "/api/subscriptions/me", "nairobi", token(t, "nairobi", uuid.New()), nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = request(t, app, http.MethodGet, "/api/subscriptions/me", "lagos", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestEntitlementAndSubscription(t *testing.T) {
	flow := &stubFlow{res: &services.CheckoutResult{Decision: &entitlement.Decision{Allowed: true, Used: 1, Limit: 3}}}
	app := newCheckoutApp(flow, &stubListings{}, false)
	bearer := token(t, "lagos", uuid.New())

	resp, _ := request(t, app, http.MethodGet, "/api/entitlements", "lagos", bearer, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := request(t, app, http.MethodGet, "/api/entitlements?package_id="+uuid.NewString(), "lagos", bearer, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	ent := body["entitlement"].(map[string]interface{})
	assert.Equal(t, true, ent["allowed"])

	resp, body = request(t, app, http.MethodGet, "/api/subscriptions/me", "lagos", bearer, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Nil(t, body["subscription"])
}

func TestRenewAd_LimitReached(t *testing.T) {
	app := newCheckoutApp(&stubFlow{}, &stubListings{renewErr: services.ErrFreeLimitReached}, false)
	resp, body := request(t, app, http.MethodPost, "/api/submissions/"+uuid.NewString()+"/renew", "lagos", token(t, "lagos", uuid.New()), nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "You have reached your free ad limit", body["message"])
}

type stubProcessor struct {
	market string
	event  *dto.PaystackWebhook
}

func (s *stubProcessor) HandleWebhook(_ context.Context, marketID string, event *dto.PaystackWebhook) error {
	s.market = marketID
	s.event = event
	return nil
}

func TestPaystackWebhook_Signature(t *testing.T) {
	proc := &stubProcessor{}
	h := NewWebhookHandler(proc, testRegistry(), "sk_test")
	app := fiber.New()
	app.Post("/api/webhooks/paystack/:market_id", h.HandlePaystack)

	payload := []byte(`{"event":"charge.success","data":{"reference":"mkt_1","status":"success","amount":800000,"currency":"NGN"}}`)
	send := func(market, sig string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/paystack/"+market, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-paystack-signature", sig)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusUnauthorized, send("lagos", "deadbeef"))
	assert.Nil(t, proc.event)
	assert.Equal(t, fiber.StatusNotFound, send("nairobi", payment.Sign("sk_test", payload)))

	assert.Equal(t, fiber.StatusOK, send("lagos", payment.Sign("sk_test", payload)))
	require.NotNil(t, proc.event)
	assert.Equal(t, "lagos", proc.market)
	assert.Equal(t, "charge.success", proc.event.Event)
}
