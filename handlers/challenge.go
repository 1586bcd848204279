package handlers

import (
	"run-challenge-system/middleware"
	"run-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChallengeRoutes(app *fiber.App, challengeService *services.ChallengeService) {
	// 🔓 Public catalog
	app.Get("/challenges", challengeService.GetOpenChallenges)
	app.Get("/challenges/:id", challengeService.GetChallengeByID)

	// 🔒 Admin-only challenge management
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	admin.Post("/challenges", challengeService.CreateChallenge)
	admin.Put("/challenges/:id", challengeService.UpdateChallenge)
}
