package handlers

import (
	"tree-game-server/middleware"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Accounts    *services.AccountService
	Ledger      *services.LedgerService
	Catalog     *services.CatalogService
	World       *services.WorldService
	Offline     *services.OfflineService
	Stats       *services.StatsBatcher
	Chat        *services.ChatService
	Roster      *services.RosterService
	Leaderboard services.Leaderboard
	Syncer      LeaderboardSyncer
}

type Options struct {
	AdminToken string
	// ActionLimiter throttles attacks, chat and auth attempts per player.
	ActionLimiter *middleware.RateLimiter
}

// SetupRoutes wires every route. Player routes live under /s and need a session;
// streaming routes take the session from the query string.
func SetupRoutes(app *fiber.App, s Services, opts Options) {
	limiter := opts.ActionLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(10, 20)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 🔓 Public
	SetupAuthRoutes(app, s.Accounts, s.Roster, limiter)
	SetupCatalogRoutes(app, s.Catalog)
	SetupLeaderboardRoutes(app, s.Leaderboard)

	// 🔐 Player session
	secured := app.Group("/s", middleware.SessionAuthMiddleware(s.Accounts))
	SetupGameRoutes(secured, s.Ledger)
	SetupProgressionRoutes(secured, s.Ledger, s.Stats, s.Leaderboard)
	SetupWorldRoutes(app, secured, s.World, limiter)
	SetupOfflineRoutes(secured, s.Offline)
	SetupChatRoutes(app, secured, s.Chat, limiter)
	SetupRosterRoutes(app, secured, s.Roster)

	// 📡 Streams
	app.Get("/live/world", middleware.StreamAuthMiddleware(s.Accounts), StreamWorld(s.World))
	SetupFeedRoutes(app, s.Accounts, FeedSources{World: s.World, Chat: s.Chat, Roster: s.Roster})

	// 🔒 Operator
	SetupAdminRoutes(app, opts.AdminToken, s.Catalog, s.Accounts, s.Syncer)
}
