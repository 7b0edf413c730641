package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tree-game-server/config"
	"tree-game-server/handlers"
	"tree-game-server/middleware"
	"tree-game-server/services"
	"tree-game-server/store"
	"tree-game-server/utils"
	"tree-game-server/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	st, err := store.Open(cfg.StoreDriver, cfg.DatabaseURL, clock)
	if err != nil {
		log.Fatal("failed to open store: ", err)
	}
	if pg, ok := st.(*store.PostgresStore); ok {
		if err := pg.Listen(cfg.DatabaseURL); err != nil {
			log.Printf("⚠️  change notifications unavailable, only local writes will be pushed: %v", err)
		}
	}

	rng := services.NewRandomSource()
	catalog := services.NewCatalogService(st)
	ledger := services.NewLedgerService(st, catalog, rng, clock)
	accounts := services.NewAccountService(ledger, clock, []byte(cfg.JWTSecret), services.NewAdminPolicy(cfg.AdminEmails))
	accounts.TTL = cfg.SessionTTL
	chat := services.NewChatService(st, clock)
	roster := services.NewRosterService(st, clock)
	ledger.Announcer = chat

	var board services.Leaderboard = &services.StoreLeaderboard{Store: st}
	var syncer *workers.LeaderboardSyncWorker
	if cfg.Redis.Enabled() {
		rdb, err := utils.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, ranking straight from the store: %v", err)
		} else {
			defer rdb.Close()
			board = services.NewRedisLeaderboard(rdb)
			syncer = workers.NewLeaderboardSyncWorker(st, board, clock, cfg.LeaderboardSync)
		}
	}

	attackLog := services.NewAttackLog(st, clock, services.FlushPolicy{
		Interval: cfg.AttackFlushEvery,
		MaxCount: cfg.AttackFlushCount,
	})
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		attackLog.Archiver = r2
		log.Printf("✅ Pruned attacks archived to R2 bucket %s", cfg.R2.Bucket)
	}

	stats := services.NewStatsBatcher(ledger, clock, services.FlushPolicy{
		Interval: cfg.StatsFlushEvery,
		MaxValue: cfg.StatsFlushValue,
	})
	stats.Leaderboard = board

	world := services.NewWorldService(st, catalog, rng, clock)
	world.MaxHealth = cfg.MaxTreeHealth
	world.Attacks = attackLog
	world.Stats = stats
	offline := services.NewOfflineService(ledger, world, rng, clock)

	// the catalog is seeded once; an empty one means a fresh database
	if weapons, err := catalog.Weapons(ctx); err != nil || len(weapons) == 0 {
		log.Println("⚠️  Weapon catalog is empty, run `treeadmin seed-weapons` or POST /admin/weapons/seed")
	}

	if err := attackLog.Start(); err != nil {
		log.Fatal("failed to start attack log batcher: ", err)
	}
	if err := stats.Start(); err != nil {
		log.Fatal("failed to start stats batcher: ", err)
	}
	if err := roster.Start(); err != nil {
		log.Fatal("failed to start roster cleanup: ", err)
	}
	if syncer != nil {
		syncer.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    64 * 1024,
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Admin-Token",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	svc := handlers.Services{
		Accounts:    accounts,
		Ledger:      ledger,
		Catalog:     catalog,
		World:       world,
		Offline:     offline,
		Stats:       stats,
		Chat:        chat,
		Roster:      roster,
		Leaderboard: board,
	}
	if syncer != nil {
		svc.Syncer = syncer
	}
	handlers.SetupRoutes(app, svc, handlers.Options{
		AdminToken:    cfg.AdminToken,
		ActionLimiter: middleware.NewRateLimiter(cfg.AttacksPerSecond, cfg.AttackBurst),
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s (store: %s)", cfg.Port, cfg.StoreDriver)
	log.Printf("✅ Attack log flush every %s / %d hits, stats every %s", cfg.AttackFlushEvery, cfg.AttackFlushCount, cfg.StatsFlushEvery)
	log.Printf("✅ CORS configured for origins: %s", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGraceTime)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}
	if err := roster.Stop(); err != nil {
		log.Printf("⚠️  roster stop: %v", err)
	}
	if err := attackLog.Stop(shutdownCtx); err != nil {
		log.Printf("⚠️  attack log flush: %v", err)
	}
	if err := stats.Stop(shutdownCtx); err != nil {
		log.Printf("⚠️  stats flush: %v", err)
	}
	world.Wait()
	if err := st.Close(); err != nil {
		log.Printf("⚠️  store close: %v", err)
	}
	log.Println("⏹️ Server stopped")
}
