package handlers

import (
	"run-challenge-system/middleware"
	"run-challenge-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCouponRoutes(app *fiber.App, couponService *services.CouponService, pricingService *services.PricingService) {
	// 🔐 Live discount preview — read-only, never consumes a use
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/coupons/validate", pricingService.ValidateCoupon)

	// 🔒 Admin coupon management
	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Post("/coupons", couponService.CreateCoupon)
	admin.Get("/coupons", couponService.GetAllCoupons)
	admin.Put("/coupons/:id", couponService.UpdateCoupon)
	admin.Get("/coupons/:id/usages", couponService.GetCouponUsages)
}
