package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// StreamAuthMiddleware authenticates long-lived connections (SSE, WebSocket) whose
// clients cannot set headers. The session token comes from the `token` query parameter,
// with the Authorization header as a fallback.
//
// Usage:
//
//	app.Get("/world/stream", middleware.StreamAuthMiddleware(accounts), api.StreamWorld)
func StreamAuthMiddleware(parser TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			token = bearerToken(c)
		}
		if token == "" {
			log.Printf("[StreamAuth] ❌ Missing token for %s from %s", c.Path(), c.IP())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token in query",
			})
		}

		claims, err := parser.ParseToken(token)
		if err != nil {
			log.Printf("[StreamAuth] ❌ Validation failed for token (prefix: %s...): %v",
				token[:min(10, len(token))], err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		attachClaims(c, claims)
		log.Printf("[StreamAuth] ✅ Authenticated %s for %s", claims.Subject, c.Path())
		return c.Next()
	}
}
