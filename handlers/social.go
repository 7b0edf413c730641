package handlers

import (
	"tree-game-server/middleware"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

func SetupChatRoutes(app *fiber.App, secured fiber.Router, chat *services.ChatService, limiter *middleware.RateLimiter) {
	app.Get("/chat", func(c *fiber.Ctx) error {
		msgs, err := chat.Recent(c.UserContext(), c.QueryInt("limit", services.RecentChatSize))
		if err != nil {
			return fail(c, "failed to load chat", err)
		}
		return c.JSON(msgs)
	})

	secured.Post("/chat", limiter.Middleware(), func(c *fiber.Ctx) error {
		type Req struct {
			Message string `json:"message"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		msg, err := chat.Send(c.UserContext(), middleware.UserID(c), middleware.UserName(c), req.Message)
		if err != nil {
			return fail(c, "failed to send message", err)
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	})
}

func SetupRosterRoutes(app *fiber.App, secured fiber.Router, roster *services.RosterService) {
	app.Get("/roster", func(c *fiber.Ctx) error {
		users, err := roster.Online(c.UserContext())
		if err != nil {
			return fail(c, "failed to load roster", err)
		}
		return c.JSON(users)
	})

	type presenceReq struct {
		WeaponName string `json:"weapon_name"`
	}

	secured.Post("/roster/online", func(c *fiber.Ctx) error {
		var req presenceReq
		_ = c.BodyParser(&req)
		if err := roster.SetOnline(c.UserContext(), middleware.UserID(c), middleware.UserName(c), req.WeaponName); err != nil {
			return fail(c, "failed to go online", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/roster/heartbeat", func(c *fiber.Ctx) error {
		var req presenceReq
		_ = c.BodyParser(&req)
		if err := roster.Heartbeat(c.UserContext(), middleware.UserID(c), req.WeaponName); err != nil {
			return fail(c, "heartbeat failed", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Post("/roster/offline", func(c *fiber.Ctx) error {
		if err := roster.SetOffline(c.UserContext(), middleware.UserID(c)); err != nil {
			return fail(c, "failed to go offline", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
