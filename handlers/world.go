package handlers

import (
	"time"

	"tree-game-server/middleware"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

// SetupWorldRoutes exposes the shared tree: public reads, and attacks for signed-in players.
func SetupWorldRoutes(app *fiber.App, secured fiber.Router, world *services.WorldService, limiter *middleware.RateLimiter) {
	app.Get("/world", func(c *fiber.Ctx) error {
		state, err := world.GetState(c.UserContext())
		if err != nil {
			return fail(c, "failed to load world state", err)
		}
		return c.JSON(state)
	})

	app.Get("/world/attacks", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", services.RecentAttackSize)
		if limit <= 0 || limit > services.AttackRetention {
			limit = services.RecentAttackSize
		}
		records, err := world.RecentAttacks(c.UserContext(), limit)
		if err != nil {
			return fail(c, "failed to load attacks", err)
		}
		return c.JSON(records)
	})

	secured.Post("/world/attack", limiter.Middleware(), func(c *fiber.Ctx) error {
		var req services.AttackRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		req.UserID = middleware.UserID(c)
		req.UserName = middleware.UserName(c)
		result, err := world.Attack(c.UserContext(), req)
		if err != nil {
			return fail(c, "attack failed", err)
		}
		return c.JSON(result)
	})
}

func SetupOfflineRoutes(secured fiber.Router, offline *services.OfflineService) {
	secured.Put("/offline", func(c *fiber.Ctx) error {
		type Req struct {
			WeaponID       int        `json:"weapon_id"`
			WeaponLevel    int        `json:"weapon_level"`
			AttackInterval int        `json:"attack_interval"`
			LastActive     *time.Time `json:"last_active"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		err := offline.SaveOfflineState(c.UserContext(), middleware.UserID(c), req.WeaponID, req.WeaponLevel, req.AttackInterval, req.LastActive)
		if err != nil {
			return fail(c, "failed to save offline state", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Delete("/offline", func(c *fiber.Ctx) error {
		if err := offline.ClearOfflineState(c.UserContext(), middleware.UserID(c)); err != nil {
			return fail(c, "failed to clear offline state", err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	secured.Get("/offline/reward", func(c *fiber.Ctx) error {
		reward, err := offline.Calculate(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, "failed to calculate offline reward", err)
		}
		return c.JSON(fiber.Map{"reward": reward})
	})

	secured.Post("/offline/claim", func(c *fiber.Ctx) error {
		result, err := offline.Apply(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, "failed to claim offline reward", err)
		}
		if result == nil {
			return c.JSON(fiber.Map{"claimed": false})
		}
		return c.JSON(fiber.Map{"claimed": true, "result": result})
	})
}
