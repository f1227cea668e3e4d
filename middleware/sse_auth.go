// middleware/sse_auth.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"

	"fight-arena/services"
)

// SSEAuthMiddleware validates `token` and `device_id` from query params via
// the auth service. EventSource clients cannot set headers, hence the query
// params.
//
// Usage:
//   app.Get("/fights/:id/stream", middleware.SSEAuthMiddleware(authClient), streamService.StreamFightSSE)
func SSEAuthMiddleware(authClient *services.AuthServiceClient) func(*fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(string(c.Request().URI().QueryArgs().Peek("token")))
		deviceID := strings.TrimSpace(string(c.Request().URI().QueryArgs().Peek("device_id")))

		if accessToken == "" || deviceID == "" {
			log.Printf("[SSEAuth] ❌ Missing query params on %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token or device_id in query",
			})
		}

		resp, err := authClient.ValidateToken(accessToken, deviceID)
		if err != nil {
			log.Printf("[SSEAuth] ❌ Validation failed for token (prefix: %s...), device %s: %v",
				accessToken[:min(10, len(accessToken))], deviceID, err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("user_id", resp.UserID)
		c.Locals("device_id", resp.DeviceID)

		return c.Next()
	}
}

// AdminStreamMiddleware gates the admin telemetry stream behind a trusted
// service credential. A client-declared role never gets through here.
func AdminStreamMiddleware() fiber.Handler {
	expectedToken := os.Getenv("ADMIN_STREAM_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ ADMIN_STREAM_TOKEN is not set — admin stream cannot be gated")
	}

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			// EventSource fallback
			token = strings.TrimSpace(string(c.Request().URI().QueryArgs().Peek("service_token")))
		}

		if token != expectedToken {
			log.Printf("🚫 [ADMIN_STREAM] Rejected subscription attempt on %s", c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin stream requires a service credential",
			})
		}
		return c.Next()
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
