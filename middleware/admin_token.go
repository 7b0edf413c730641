package middleware

import (
	"crypto/subtle"
	"log"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenMiddleware guards operator routes with a static service token. Player
// sessions are never accepted here. An empty expected token disables the routes.
func AdminTokenMiddleware(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		log.Println("⚠️  ADMIN_TOKEN is not set, admin routes are disabled")
	}

	return func(c *fiber.Ctx) error {
		if expectedToken == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "admin API disabled",
			})
		}

		token := bearerToken(c)
		if token == "" {
			token = c.Get("X-Admin-Token")
		}
		if token == "" {
			log.Printf("🚫 [ADMIN_AUTH] Missing admin token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "admin token missing",
			})
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [ADMIN_AUTH] Invalid token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid admin token",
			})
		}

		log.Printf("✅ [ADMIN_AUTH] admin request accepted for %s", c.Path())
		return c.Next()
	}
}
