package handlers

import (
	"fight-arena/middleware"
	"fight-arena/services"

	"github.com/gofiber/fiber/v2"
)

func SetupStreamRoutes(app *fiber.App, streamService *services.StreamService, authClient *services.AuthServiceClient) {
	// Per-fight and arena rooms: EventSource clients authenticate via query
	// params checked against the auth service.
	app.Get("/fights/:id/stream", middleware.SSEAuthMiddleware(authClient), streamService.StreamFightSSE)
	app.Get("/arena/stream", middleware.SSEAuthMiddleware(authClient), streamService.StreamArenaSSE)

	// Admin room: gated by a trusted service credential, never a
	// client-declared role.
	app.Get("/admin/stream", middleware.AdminStreamMiddleware(), streamService.StreamAdminSSE)
}
