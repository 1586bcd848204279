package handlers

import (
	"run-challenge-system/middleware"
	"run-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRegistrationRoutes(app *fiber.App, registrationService *services.RegistrationService, verificationService *services.VerificationService) {
	// 🔐 Authenticated user routes
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/registrations", registrationService.CreateRegistration)
	secured.Get("/registrations/me", registrationService.GetMyRegistrations)
	secured.Post("/registrations/:id/checkout", registrationService.Checkout)
	secured.Post("/registrations/:id/proof", registrationService.SubmitProof)

	// 🔒 Staff review queue
	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Get("/registrations/pending", registrationService.GetPendingReviews)
	admin.Patch("/registrations/:id/review", registrationService.ReviewRegistration)
	admin.Get("/registrations/:id/verification-logs", verificationService.GetVerificationLogs)
}
