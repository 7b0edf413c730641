// handlers/progression_routes.go
package handlers

import (
	"errors"

	"tree-game-server/middleware"
	"tree-game-server/models"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

// SetupLeaderboardRoutes serves the public damage ranking.
func SetupLeaderboardRoutes(app *fiber.App, board services.Leaderboard) {
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		top, err := board.Top(c.UserContext(), c.QueryInt("limit", services.DefaultLeaderboardSize))
		if err != nil {
			return fail(c, "failed to load leaderboard", err)
		}
		return c.JSON(top)
	})
}

func SetupProgressionRoutes(secured fiber.Router, ledger *services.LedgerService, stats *services.StatsBatcher, board services.Leaderboard) {
	secured.Put("/achievements", func(c *fiber.Ctx) error {
		var a models.Achievement
		if err := c.BodyParser(&a); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if a.ID == "" {
			return badRequest(c, "achievement id is required", nil)
		}
		achievements, err := ledger.UpdateAchievement(c.UserContext(), middleware.UserID(c), a)
		if err != nil {
			return fail(c, "failed to update achievement", err)
		}
		return c.JSON(achievements)
	})

	// Lifetime totals are batched; the response only acknowledges receipt.
	secured.Post("/stats", func(c *fiber.Ctx) error {
		type Req struct {
			TotalDamage int64 `json:"total_damage"`
			TotalGold   int64 `json:"total_gold_earned"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		if err := stats.Report(middleware.UserID(c), req.TotalDamage, req.TotalGold); err != nil {
			return fail(c, "stats rejected", err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	secured.Get("/leaderboard/me", func(c *fiber.Ctx) error {
		entry, err := board.Rank(c.UserContext(), middleware.UserID(c))
		if errors.Is(err, services.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not ranked yet"})
		}
		if err != nil {
			return fail(c, "failed to load rank", err)
		}
		return c.JSON(entry)
	})
}
