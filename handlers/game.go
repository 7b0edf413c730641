package handlers

import (
	"strconv"

	"tree-game-server/middleware"
	"tree-game-server/models"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

// SetupCatalogRoutes exposes the weapon catalog and draw odds; no session needed.
func SetupCatalogRoutes(app *fiber.App, catalog *services.CatalogService) {
	app.Get("/weapons", func(c *fiber.Ctx) error {
		weapons, err := catalog.Weapons(c.UserContext())
		if err != nil {
			return fail(c, "failed to load weapons", err)
		}
		return c.JSON(weapons)
	})

	app.Get("/weapons/odds", func(c *fiber.Ctx) error {
		var floor *models.Rarity
		if raw := c.Query("floor"); raw != "" {
			r, err := models.ParseRarity(raw)
			if err != nil {
				return badRequest(c, "invalid rarity", err)
			}
			floor = &r
		}
		weapons, err := catalog.Weapons(c.UserContext())
		if err != nil {
			return fail(c, "failed to load weapons", err)
		}
		return c.JSON(fiber.Map{
			"rarity_probability": services.RarityProbability,
			"weapons":            services.WeaponOdds(weapons, floor),
		})
	})
}

func pathIndex(c *fiber.Ctx) (int, error) {
	return strconv.Atoi(c.Params("index"))
}

// SetupGameRoutes registers the per-player economy routes on the secured router.
func SetupGameRoutes(secured fiber.Router, ledger *services.LedgerService) {
	secured.Get("/game-data", func(c *fiber.Ctx) error {
		acc, err := ledger.GetAccount(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return fail(c, "failed to load game data", err)
		}
		acc.PasswordHash = ""
		return c.JSON(acc)
	})

	secured.Post("/draw", func(c *fiber.Ctx) error {
		type Req struct {
			Rarity string `json:"rarity"`
			Cost   int64  `json:"cost"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		floor, err := models.ParseRarity(req.Rarity)
		if err != nil {
			return badRequest(c, "invalid rarity", err)
		}
		result, err := ledger.Draw(c.UserContext(), middleware.UserID(c), floor, req.Cost)
		if err != nil {
			return fail(c, "draw failed", err)
		}
		return c.JSON(result)
	})

	type goldReq struct {
		Delta int64 `json:"delta"`
	}
	secured.Post("/gold", func(c *fiber.Ctx) error {
		var req goldReq
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		gold, err := ledger.ApplyGoldDelta(c.UserContext(), middleware.UserID(c), req.Delta)
		if err != nil {
			return fail(c, "gold update failed", err)
		}
		return c.JSON(fiber.Map{"gold": gold})
	})

	secured.Post("/gold/batch", func(c *fiber.Ctx) error {
		var req goldReq
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		gold, err := ledger.BatchGoldDelta(c.UserContext(), middleware.UserID(c), req.Delta)
		if err != nil {
			return fail(c, "gold update failed", err)
		}
		return c.JSON(fiber.Map{"gold": gold})
	})

	inventory := secured.Group("/inventory")

	inventory.Post("/", func(c *fiber.Ctx) error {
		var w models.WeaponInstance
		if err := c.BodyParser(&w); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		result, err := ledger.AddWeapon(c.UserContext(), middleware.UserID(c), w)
		if err != nil {
			return fail(c, "failed to add weapon", err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	inventory.Post("/equip", func(c *fiber.Ctx) error {
		type Req struct {
			Index *int `json:"index"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		result, err := ledger.EquipWeapon(c.UserContext(), middleware.UserID(c), req.Index)
		if err != nil {
			return fail(c, "failed to equip weapon", err)
		}
		return c.JSON(result)
	})

	inventory.Put("/:index", func(c *fiber.Ctx) error {
		index, err := pathIndex(c)
		if err != nil {
			return badRequest(c, "invalid index", err)
		}
		var w models.WeaponInstance
		if err := c.BodyParser(&w); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		result, err := ledger.UpgradeWeapon(c.UserContext(), middleware.UserID(c), index, w)
		if err != nil {
			return fail(c, "failed to upgrade weapon", err)
		}
		return c.JSON(result)
	})

	inventory.Post("/:index/sell", func(c *fiber.Ctx) error {
		index, err := pathIndex(c)
		if err != nil {
			return badRequest(c, "invalid index", err)
		}
		type Req struct {
			Price int64 `json:"price"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		result, err := ledger.SellWeapon(c.UserContext(), middleware.UserID(c), index, req.Price)
		if err != nil {
			return fail(c, "failed to sell weapon", err)
		}
		return c.JSON(result)
	})

	inventory.Post("/:index/sacrifice", func(c *fiber.Ctx) error {
		index, err := pathIndex(c)
		if err != nil {
			return badRequest(c, "invalid index", err)
		}
		type Req struct {
			Sacrifices []int                 `json:"sacrifices"`
			Upgraded   models.WeaponInstance `json:"upgraded"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON", err)
		}
		result, err := ledger.SacrificeUpgrade(c.UserContext(), middleware.UserID(c), index, req.Sacrifices, req.Upgraded)
		if err != nil {
			return fail(c, "sacrifice failed", err)
		}
		return c.JSON(result)
	})
}
