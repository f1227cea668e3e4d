package handlers

import (
	"fight-arena/middleware"
	"fight-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPrizeRoutes(app *fiber.App, prizeService *services.PrizePoolService, referralService *services.ReferralService) {
	// 🔓 Public pool snapshot for the lobby
	app.Get("/prizes/pool", prizeService.GetActivePool)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Get("/prizes", prizeService.GetUserPrizes)
	secured.Post("/prizes/:id/claim", prizeService.ClaimPrize)
	secured.Get("/referrals/earnings", referralService.GetUserEarnings)
}
