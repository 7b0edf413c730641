package handlers

import (
	"log"

	"tree-game-server/middleware"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAuthRoutes(app *fiber.App, accounts *services.AccountService, roster *services.RosterService, limiter *middleware.RateLimiter) {
	auth := app.Group("/auth", limiter.Middleware())

	auth.Post("/register", func(c *fiber.Ctx) error {
		var req services.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		session, err := accounts.Register(c.UserContext(), req)
		if err != nil {
			return fail(c, "registration failed", err)
		}
		markOnline(c, roster, session)
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	auth.Post("/login", func(c *fiber.Ctx) error {
		type Req struct {
			Name     string `json:"name"`
			Password string `json:"password"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		session, err := accounts.Login(c.UserContext(), req.Name, req.Password)
		if err != nil {
			return fail(c, "login failed", err)
		}
		markOnline(c, roster, session)
		return c.JSON(session)
	})
}

// markOnline lists a freshly signed-in player on the roster. Failure only costs the
// roster entry, so the session is still returned.
func markOnline(c *fiber.Ctx, roster *services.RosterService, session *services.Session) {
	if roster == nil {
		return
	}
	acc := session.Account
	weaponName := ""
	if w, ok := acc.Equipped(); ok {
		weaponName = w.Name
	}
	if err := roster.SetOnline(c.UserContext(), acc.ID, acc.DisplayName, weaponName); err != nil {
		log.Printf("⚠️ [API] roster online for %s: %v", acc.ID, err)
	}
}
