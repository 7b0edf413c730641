package handlers

import (
	"context"
	"net/url"

	"tree-game-server/middleware"
	"tree-game-server/models"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

// LeaderboardSyncer rebuilds the leaderboard from the accounts on demand.
type LeaderboardSyncer interface {
	SyncOnce(ctx context.Context) (int, error)
}

// SetupAdminRoutes registers operator routes behind the admin service token.
func SetupAdminRoutes(app *fiber.App, adminToken string, catalog *services.CatalogService, accounts *services.AccountService, syncer LeaderboardSyncer) {
	admin := app.Group("/admin", middleware.AdminTokenMiddleware(adminToken))

	admin.Post("/weapons/seed", func(c *fiber.Ctx) error {
		if err := catalog.Seed(c.UserContext(), models.DefaultWeapons); err != nil {
			return fail(c, "failed to seed weapons", err)
		}
		return c.JSON(fiber.Map{"seeded": len(models.DefaultWeapons)})
	})

	admin.Post("/accounts/reset", func(c *fiber.Ctx) error {
		n, err := accounts.ResetAccounts(c.UserContext())
		if err != nil {
			return fail(c, "failed to reset accounts", err)
		}
		return c.JSON(fiber.Map{"deleted": n})
	})

	admin.Get("/users", func(c *fiber.Ctx) error {
		users, err := accounts.ListUsers(c.UserContext())
		if err != nil {
			return fail(c, "failed to list users", err)
		}
		return c.JSON(users)
	})

	admin.Put("/users/:name/admin", func(c *fiber.Ctx) error {
		type Req struct {
			Admin *bool `json:"admin"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		name, err := url.PathUnescape(c.Params("name"))
		if err != nil {
			return badRequest(c, "invalid name", err)
		}
		grant := req.Admin == nil || *req.Admin
		acc, err := accounts.SetAdmin(c.UserContext(), name, grant)
		if err != nil {
			return fail(c, "failed to set admin", err)
		}
		return c.JSON(fiber.Map{"id": acc.ID, "display_name": acc.DisplayName, "is_admin": acc.IsAdmin})
	})

	if syncer != nil {
		admin.Post("/leaderboard/sync", func(c *fiber.Ctx) error {
			n, err := syncer.SyncOnce(c.UserContext())
			if err != nil {
				return fail(c, "leaderboard sync failed", err)
			}
			return c.JSON(fiber.Map{"synced": n})
		})
	}
}
