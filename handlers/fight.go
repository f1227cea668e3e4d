package handlers

import (
	"fight-arena/middleware"
	"fight-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupFightRoutes(app *fiber.App, fightService *services.FightService) {
	// 🔓 Public lobby views
	app.Get("/fights/open", fightService.ListOpenFights)
	app.Get("/fights/live", fightService.ListLiveFights)
	app.Get("/fights/:id", fightService.GetFight)
	app.Get("/fights/:id/trades", fightService.GetFightTrades)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Post("/fights", fightService.CreateFight)
	secured.Post("/fights/:id/join", fightService.JoinFight)
	secured.Post("/fights/:id/cancel", fightService.CancelFight)

	// Operational abort — admin role enforced at the gateway, re-checked here
	admin := app.Group("/admin", middleware.UserContextMiddleware(), requireAdminRole())
	admin.Post("/fights/:id/abort", fightService.AbortFight)
}

// requireAdminRole double-checks the gateway-asserted roles.
func requireAdminRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals("user_roles").([]string)
		for _, r := range roles {
			if r == "admin" {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}
}
