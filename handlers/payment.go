package handlers

import (
	"run-challenge-system/middleware"
	"run-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPaymentRoutes(app *fiber.App, paymentService *services.PaymentService) {
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/payments/verify", paymentService.VerifyPayment)
}
