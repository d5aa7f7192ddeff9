package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/adebayo-oss/slotpay/internal/pkg/entitlements"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
)

// SlotPurchaseFacade is the slice of the entitlements service the HTTP layer uses.
type SlotPurchaseFacade interface {
	PurchaseSlots(ctx context.Context, userID uint, units int) (*payments.CreatePaymentResult, error)
	GetBalance(ctx context.Context, userID uint) (*entitlements.Balance, error)
}

var entitlementService SlotPurchaseFacade

// InitializeEntitlementController injects the purchase facade.
func InitializeEntitlementController(svc SlotPurchaseFacade) {
	entitlementService = svc
}

// PurchaseSlotsRequest is the POST /entitlements/purchase body.
type PurchaseSlotsRequest struct {
	UserID uint `json:"user_id" validate:"required"`
	Units  int  `json:"units" validate:"required,gt=0"`
}

// HandlePurchaseSlots prices a slot purchase and returns the provider redirect.
func HandlePurchaseSlots(c *fiber.Ctx) error {
	var req PurchaseSlotsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := entitlementService.PurchaseSlots(ctx, req.UserID, req.Units)
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

// HandleGetEntitlements returns the slot counters for a user.
func HandleGetEntitlements(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "userId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_id"})
	}

	// A user without purchases gets zero counters, so the only failure here
	// is a store error.
	balance, err := entitlementService.GetBalance(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":         balance.UserID,
		"available_units": balance.AvailableUnits,
		"used_units":      balance.UsedUnits,
	})
}
