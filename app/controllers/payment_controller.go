package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/adebayo-oss/slotpay/app/models"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
)

// HeaderProviderSignature carries the HMAC the provider computes over the raw
// webhook body.
const HeaderProviderSignature = "X-Provider-Signature"

// PaymentOrchestrator is the slice of the payment service the HTTP layer uses.
type PaymentOrchestrator interface {
	CreatePayment(ctx context.Context, in payments.CreatePaymentInput) (*payments.CreatePaymentResult, error)
	Reconcile(ctx context.Context, providerReference, reportedStatus string) error
	VerifyNotificationSignature(rawPayload []byte, signatureHeader string) bool
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	ListUserPayments(ctx context.Context, userID uint, offset, limit int) ([]models.Payment, error)
}

var paymentService PaymentOrchestrator

// InitializePaymentController injects the payment orchestrator.
func InitializePaymentController(svc PaymentOrchestrator) {
	paymentService = svc
}

// CreatePaymentRequest is the POST /payments body.
type CreatePaymentRequest struct {
	UserID   uint   `json:"user_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
	Units    int    `json:"units" validate:"required,gt=0"`
}

// HandleCreatePayment creates a payment intent and returns the provider
// redirect. No entitlements are credited on this path.
func HandleCreatePayment(c *fiber.Ctx) error {
	var req CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := paymentService.CreatePayment(ctx, payments.CreatePaymentInput{
		UserID:          req.UserID,
		AmountKobo:      req.Amount,
		Currency:        req.Currency,
		UnitsRequested:  req.Units,
		EntitlementKind: models.EntitlementKindListingSlot,
		PurchaseType:    models.PurchaseTypeListingSlots,
	})
	if err != nil {
		return paymentErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":            true,
		"payment_id":         result.Payment.ID,
		"authorization_url":  result.AuthorizationURL,
		"provider_reference": result.ProviderReference,
	})
}

// HandleGetPayment returns a single ledger row by internal id.
func HandleGetPayment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}

	payment, err := paymentService.GetPayment(c.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	return c.Status(fiber.StatusOK).JSON(payment)
}

// HandleGetUserPayments returns a page of a user's ledger, newest first.
func HandleGetUserPayments(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}

	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)

	list, err := paymentService.ListUserPayments(c.Context(), userID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"payments": list,
		"count":    len(list),
	})
}

// webhookEnvelope is the minimal untrusted shape extracted from a provider
// notification. Nothing else in the payload is trusted or read.
type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// HandlePaymentWebhook authenticates and ingests asynchronous provider
// notifications. A bad signature is the only non-200 outcome; everything after
// the gate is acknowledged so provider retries stay harmless, with failures
// logged rather than surfaced.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(HeaderProviderSignature))

	if !paymentService.VerifyNotificationSignature(rawBody, signature) {
		log.Warnf("[Webhook] rejected notification with invalid signature (%d bytes)", len(rawBody))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		log.Warnf("[Webhook] authenticated notification with malformed payload: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	reference := strings.TrimSpace(envelope.Data.Reference)
	status := strings.TrimSpace(envelope.Data.Status)
	if status == "" && strings.EqualFold(envelope.Event, "charge.success") {
		status = "success"
	}
	if reference == "" {
		log.Warnf("[Webhook] authenticated notification without reference, event=%q", envelope.Event)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Reconcile outcomes, including unknown references, are acknowledged:
	// the response means "received", not "processed". Details are in the logs.
	if err := paymentService.Reconcile(ctx, reference, status); err != nil && !errors.Is(err, payments.ErrUnknownReference) {
		log.Errorf("[Webhook] reconcile reference=%s failed: %v", reference, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func paymentErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, payments.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request"})
	case errors.Is(err, payments.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
	case errors.Is(err, payments.ErrProviderRejected):
		// Provider detail stays in the logs, not in the client response.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_rejected"})
	case errors.Is(err, payments.ErrProviderUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "payment_provider_unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}
}
