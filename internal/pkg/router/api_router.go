package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/adebayo-oss/slotpay/app/controllers"
	"github.com/adebayo-oss/slotpay/internal/pkg/entitlements"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
)

type ApiRouter struct {
	payments     *payments.Service
	entitlements *entitlements.Service
}

func NewApiRouter(paymentService *payments.Service, entitlementService *entitlements.Service) *ApiRouter {
	return &ApiRouter{
		payments:     paymentService,
		entitlements: entitlementService,
	}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	controllers.InitializePaymentController(h.payments)
	controllers.InitializeEntitlementController(h.entitlements)

	// The webhook sits outside the limiter group: the provider retries on any
	// non-2xx and throttling those retries would only delay settlement.
	app.Post("/api/v1/payments/webhook", controllers.HandlePaymentWebhook)

	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Post("/payments", controllers.HandleCreatePayment)
	v1.Get("/payments/user/:id", controllers.HandleGetUserPayments)
	v1.Get("/payments/:id", controllers.HandleGetPayment)
	v1.Post("/entitlements/purchase", controllers.HandlePurchaseSlots)
	v1.Get("/entitlements/:userId", controllers.HandleGetEntitlements)
}
