package middleware

import (
	"log"
	"strings"

	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserNameKey contextKey = "user_name"
	IsAdminKey  contextKey = "is_admin"
	SessionKey  contextKey = "session_id"
)

// TokenParser verifies a session token.
type TokenParser interface {
	ParseToken(token string) (*services.Claims, error)
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}

func attachClaims(c *fiber.Ctx, claims *services.Claims) {
	c.Locals(string(UserIDKey), claims.Subject)
	c.Locals(string(UserNameKey), claims.Name)
	c.Locals(string(IsAdminKey), claims.Admin)
	c.Locals(string(SessionKey), claims.ID)
}

// SessionAuthMiddleware requires a valid "Authorization: Bearer <token>" session and
// attaches the player's id, name and admin flag to the request.
func SessionAuthMiddleware(parser TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing session token",
			})
		}
		claims, err := parser.ParseToken(token)
		if err != nil {
			log.Printf("🚫 [SESSION_AUTH] rejected token for %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired session",
			})
		}
		attachClaims(c, claims)
		return c.Next()
	}
}

// UserID returns the authenticated player's account id, or "" outside an authenticated route.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(string(UserIDKey)).(string)
	return id
}

func UserName(c *fiber.Ctx) string {
	name, _ := c.Locals(string(UserNameKey)).(string)
	return name
}

func IsAdmin(c *fiber.Ctx) bool {
	admin, _ := c.Locals(string(IsAdminKey)).(bool)
	return admin
}
