package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/adebayo-oss/slotpay/internal/pkg/entitlements"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
)

// Router installs a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires the API routes against the given services.
func InstallRouter(app *fiber.App, paymentService *payments.Service, entitlementService *entitlements.Service) {
	setup(app, NewApiRouter(paymentService, entitlementService))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
