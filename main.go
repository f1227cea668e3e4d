package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fight-arena/handlers"
	"fight-arena/middleware"
	"fight-arena/models"
	"fight-arena/services"
	"fight-arena/utils"
	"fight-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		ReadTimeout: 0, // SSE connections stay open
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Session-Token, X-Service-Token, X-Device-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}
	if !utils.R2Enabled() {
		log.Println("⚠️  R2 not configured, settlement audit archive disabled")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Fight{},
		&models.FightParticipant{},
		&models.TradeRecord{},
		&models.Violation{},
		&models.PrizeDistribution{},
		&models.PrizeRank{},
		&models.WeeklyStanding{},
		&models.Prize{},
		&models.ReferralPayout{},
		&models.ArenaUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event hub + batched arena tick fan-out
	hub := services.NewHub()
	go hub.RunArenaAggregator(ctx, 3*time.Second)

	venueClient := services.NewVenueClient()
	payoutClient := services.NewPayoutClient()

	prizeService := services.NewPrizePoolService(db, payoutClient)
	referralService := services.NewReferralService(db)
	fairnessEngine := services.NewFairnessEngine(services.DefaultFairnessConfig())
	settlementEngine := services.NewSettlementEngine(db, hub, fairnessEngine, prizeService, referralService)
	tickScheduler := services.NewTickScheduler(db, venueClient, hub)
	lifecycleService := services.NewLifecycleService(db, hub, venueClient, tickScheduler, settlementEngine)
	fightService := services.NewFightService(db, lifecycleService)
	streamService := services.NewStreamService(hub)

	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	fightServiceToken := os.Getenv("FIGHT_SERVICE_TOKEN")
	if fightServiceToken == "" {
		log.Fatal("FIGHT_SERVICE_TOKEN environment variable not set")
	}
	authClient := services.NewAuthServiceClient(authServiceURL, fightServiceToken)

	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}
	userSyncWorker := workers.NewUserSyncWorker(db, profileServiceURL, "/api/v1/public/profiles", fightServiceToken)
	go userSyncWorker.Start(ctx)

	// Re-arm expiry timers and tickers for fights that were LIVE at restart
	if err := lifecycleService.ResumeLiveFights(ctx); err != nil {
		log.Fatal("failed to resume live fights:", err)
	}

	engineScheduler, err := services.StartEngineScheduler(lifecycleService, prizeService, hub)
	if err != nil {
		log.Fatal("failed to start engine scheduler:", err)
	}
	defer func() { _ = engineScheduler.Shutdown() }()

	handlers.SetupFightRoutes(app, fightService)
	handlers.SetupPrizeRoutes(app, prizeService, referralService)
	handlers.SetupStreamRoutes(app, streamService, authClient)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Arena user sync worker running")
	log.Println("✅ Engine scheduler running (expiry sweep + prize rollover)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
