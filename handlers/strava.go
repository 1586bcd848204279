package handlers

import (
	"run-challenge-system/middleware"
	"run-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupStravaRoutes(app *fiber.App, stravaService *services.StravaService) {
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/strava/connect", stravaService.ConnectStrava)
	secured.Get("/strava/connection", stravaService.GetConnection)
	secured.Post("/strava/sync", stravaService.SyncActivities)
	secured.Delete("/strava/connection", stravaService.DisconnectStrava)
}
