package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/adebayo-oss/slotpay/internal/pkg/cache"
	"github.com/adebayo-oss/slotpay/internal/pkg/database"
	"github.com/adebayo-oss/slotpay/internal/pkg/entitlements"
	"github.com/adebayo-oss/slotpay/internal/pkg/env"
	"github.com/adebayo-oss/slotpay/internal/pkg/jobqueue"
	"github.com/adebayo-oss/slotpay/internal/pkg/payments"
	"github.com/adebayo-oss/slotpay/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4200")))
	jobqueue.ShutdownWorkerSystem()
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "slotpay",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "admin"),
		},
	}), monitor.New())

	// SERVICES
	paymentService := payments.NewServiceFromDB(database.GetDB())
	entitlementService := entitlements.NewService(paymentService)

	// ROUTER
	router.InstallRouter(app, paymentService, entitlementService)

	// background verification of pending payments
	jobqueue.InitWorkerSystem(paymentService)

	return app
}
