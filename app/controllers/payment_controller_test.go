package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/adebayo-oss/slotpay/app/models"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
)

const testWebhookSecret = "whsec_test"

type reconcileCall struct {
	Reference string
	Status    string
}

// fakeOrchestrator implements PaymentOrchestrator with recorded calls and a
// real signature check so the gate behaves like production.
type fakeOrchestrator struct {
	mu             sync.Mutex
	reconcileCalls []reconcileCall
	reconcileErr   error
	createErr      error
	payment        *models.Payment
}

func (f *fakeOrchestrator) CreatePayment(ctx context.Context, in payments.CreatePaymentInput) (*payments.CreatePaymentResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &payments.CreatePaymentResult{
		AuthorizationURL:  "https://checkout.example.com/abc",
		ProviderReference: "SP-test-ref",
		Payment:           &models.Payment{ID: 7, UserID: in.UserID, AmountKobo: in.AmountKobo},
	}, nil
}

func (f *fakeOrchestrator) Reconcile(ctx context.Context, providerReference, reportedStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileCalls = append(f.reconcileCalls, reconcileCall{Reference: providerReference, Status: reportedStatus})
	return f.reconcileErr
}

func (f *fakeOrchestrator) VerifyNotificationSignature(rawPayload []byte, signatureHeader string) bool {
	return payments.VerifyWebhookSignature(rawPayload, signatureHeader, testWebhookSecret)
}

func (f *fakeOrchestrator) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	if f.payment == nil || f.payment.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return f.payment, nil
}

func (f *fakeOrchestrator) ListUserPayments(ctx context.Context, userID uint, offset, limit int) ([]models.Payment, error) {
	if f.payment != nil && f.payment.UserID == userID {
		return []models.Payment{*f.payment}, nil
	}
	return nil, nil
}

func (f *fakeOrchestrator) calls() []reconcileCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reconcileCall(nil), f.reconcileCalls...)
}

func newPaymentTestApp(t *testing.T) (*fiber.App, *fakeOrchestrator) {
	t.Helper()
	fake := &fakeOrchestrator{}
	InitializePaymentController(fake)

	app := fiber.New()
	app.Post("/api/v1/payments", HandleCreatePayment)
	app.Get("/api/v1/payments/user/:id", HandleGetUserPayments)
	app.Get("/api/v1/payments/:id", HandleGetPayment)
	app.Post("/api/v1/payments/webhook", HandlePaymentWebhook)
	return app, fake
}

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(HeaderProviderSignature, signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHandleCreatePayment(t *testing.T) {
	app, _ := newPaymentTestApp(t)

	body, _ := json.Marshal(fiber.Map{"user_id": 1, "amount": 150000, "units": 3})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "SP-test-ref", out["provider_reference"])
	assert.Equal(t, "https://checkout.example.com/abc", out["authorization_url"])
}

func TestHandleCreatePaymentValidation(t *testing.T) {
	app, _ := newPaymentTestApp(t)

	cases := []fiber.Map{
		{"user_id": 1, "amount": 0, "units": 3},
		{"user_id": 1, "amount": 150000, "units": 0},
		{"amount": 150000, "units": 3},
		{"user_id": 1, "amount": 150000, "units": 3, "currency": "NAIRA"},
	}
	for _, payload := range cases {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandleCreatePaymentErrorMapping(t *testing.T) {
	app, fake := newPaymentTestApp(t)

	cases := []struct {
		err  error
		code int
	}{
		{payments.ErrInvalidRequest, fiber.StatusBadRequest},
		{payments.ErrUserNotFound, fiber.StatusNotFound},
		{payments.ErrProviderRejected, fiber.StatusBadRequest},
		{payments.ErrProviderUnavailable, fiber.StatusBadGateway},
		{payments.ErrInternal, fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		fake.createErr = tc.err
		body, _ := json.Marshal(fiber.Map{"user_id": 1, "amount": 150000, "units": 3})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, tc.code, resp.StatusCode, "for %v", tc.err)
	}
}

func TestHandleGetPayment(t *testing.T) {
	app, fake := newPaymentTestApp(t)
	fake.payment = &models.Payment{ID: 7, UserID: 1, Status: models.PaymentStatusPending}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payments/7", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payments/99", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payments/abc", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleGetUserPayments(t *testing.T) {
	app, fake := newPaymentTestApp(t)
	fake.payment = &models.Payment{ID: 7, UserID: 1, Status: models.PaymentStatusSuccess}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/payments/user/1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Payments []models.Payment `json:"payments"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)
	require.Len(t, out.Payments, 1)
	assert.Equal(t, uint(7), out.Payments[0].ID)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	app, fake := newPaymentTestApp(t)

	body := []byte(`{"event":"charge.success","data":{"reference":"SP-1","status":"success"}}`)

	resp := postWebhook(t, app, body, "deadbeef")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = postWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Signature valid for a different body.
	other := []byte(`{"event":"charge.success","data":{"reference":"SP-2","status":"success"}}`)
	resp = postWebhook(t, app, body, signWebhookBody(other))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Nothing got past the gate.
	assert.Empty(t, fake.calls())
}

func TestWebhookReconcilesAuthenticatedNotification(t *testing.T) {
	app, fake := newPaymentTestApp(t)

	body := []byte(`{"event":"charge.success","data":{"reference":"SP-1","status":"success"}}`)
	resp := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SP-1", calls[0].Reference)
	assert.Equal(t, "success", calls[0].Status)
}

func TestWebhookInfersStatusFromEvent(t *testing.T) {
	app, fake := newPaymentTestApp(t)

	body := []byte(`{"event":"charge.success","data":{"reference":"SP-1"}}`)
	resp := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "success", calls[0].Status)
}

func TestWebhookDuplicateDeliveriesAcknowledged(t *testing.T) {
	app, fake := newPaymentTestApp(t)

	body := []byte(`{"event":"charge.success","data":{"reference":"SP-1","status":"success"}}`)
	sig := signWebhookBody(body)

	for i := 0; i < 3; i++ {
		resp := postWebhook(t, app, body, sig)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	// The controller forwards every delivery; deduplication happens in the
	// conditional update underneath.
	assert.Len(t, fake.calls(), 3)
}

func TestWebhookUnknownReferenceStillAcknowledged(t *testing.T) {
	app, fake := newPaymentTestApp(t)
	fake.reconcileErr = payments.ErrUnknownReference

	body := []byte(`{"event":"charge.success","data":{"reference":"SP-forged","status":"success"}}`)
	resp := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, true, out["ok"])
}

func TestWebhookMalformedPayloadAfterValidSignature(t *testing.T) {
	app, fake := newPaymentTestApp(t)

	body := []byte(`not-json`)
	resp := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, fake.calls())

	body = []byte(`{"event":"charge.failed","data":{"status":"failed"}}`)
	resp = postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, fake.calls())
}
