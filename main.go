package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hackathon-engine/config"
	"hackathon-engine/handlers"
	"hackathon-engine/ledger"
	"hackathon-engine/middleware"
	"hackathon-engine/models"
	"hackathon-engine/services"
	"hackathon-engine/utils"
	"hackathon-engine/workers"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 512 * 1024 * 1024, // submission archives
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := cfg.Server.AllowedOrigins
	if allowedOrigins == "" {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		allowedOrigins = "http://localhost:3000"
	}
	originsList := strings.Split(allowedOrigins, ",")
	for i, origin := range originsList {
		originsList[i] = strings.TrimSpace(origin)
	}
	originsString := strings.Join(originsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     originsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	if cfg.Database.DSN == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(cfg.Storage); err != nil {
		log.Fatal("failed to initialize R2 client: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("failed to access underlying sql.DB: ", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.AutoMigrate(
		&models.Event{},
		&models.Participant{},
		&models.JudgeAssignment{},
		&models.Vote{},
		&models.PrizePool{},
		&models.Distribution{},
		&models.DistributionTransaction{},
		&models.AuditLog{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerClient, err := ledger.Dial(ctx, cfg.Ledger.RPCURL, cfg.Ledger.EscrowAddress, cfg.Ledger.ExecutorPrivateKey)
	if err != nil {
		log.Fatal("failed to connect to ledger RPC: ", err)
	}

	// Service graph. Monitor and orchestrator reference each other through
	// interfaces, so they are wired after construction.
	auditService := services.NewAuditService(db)
	phaseScheduler := services.NewPhaseScheduler(db, auditService, cfg.Engine.PhaseBatchSize, cfg.Engine.CompletionGracePeriod)
	winnerService := services.NewWinnerService(db, auditService)
	emergencyService := services.NewEmergencyService(db, auditService, phaseScheduler)
	distributionService := services.NewDistributionService(db, winnerService, auditService, emergencyService, cfg.Engine.MaxRetries, cfg.Engine.RetryBackoffBase)
	emergencyService.SetOrchestrator(distributionService)

	txMonitor := workers.NewTxMonitor(db, ledgerClient, auditService, cfg.Engine.ConfirmationThreshold, cfg.Engine.ReceiptTimeout)
	txMonitor.Retrier = distributionService
	txMonitor.Emergency = emergencyService
	distributionService.SetMonitor(txMonitor)

	if err := txMonitor.Initialize(ctx); err != nil {
		log.Fatal("failed to reload pending transactions: ", err)
	}

	eventService := services.NewEventService(db, phaseScheduler, winnerService, auditService)
	voteService := services.NewVoteService(db, winnerService)

	// Background engine: phase scans and payout scans on gocron, receipt
	// polling on its own ticker loop.
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("failed to create scheduler: ", err)
	}
	_, _ = sched.NewJob(
		gocron.DurationJob(cfg.Engine.PhaseScanInterval),
		gocron.NewTask(func() {
			res, err := phaseScheduler.ScanAndAdvance(ctx)
			if err != nil {
				log.Printf("[PhaseScan] error: %v", err)
				return
			}
			if res.Updated > 0 || res.Errored > 0 {
				log.Printf("🔄 [PhaseScan] processed=%d updated=%d errored=%d", res.Processed, res.Updated, res.Errored)
			}
		}),
	)
	_, _ = sched.NewJob(
		gocron.DurationJob(cfg.Engine.DistributionScanInterval),
		gocron.NewTask(func() {
			if err := distributionService.ScanForReady(ctx); err != nil {
				log.Printf("[DistributionScan] error: %v", err)
			}
		}),
	)
	sched.Start()

	go txMonitor.Poll(ctx, cfg.Engine.TxPollInterval)

	handlers.SetupEventRoutes(app, eventService, voteService)
	handlers.SetupAdminRoutes(app, &handlers.AdminHandler{
		DB:           db,
		Distribution: distributionService,
		Emergency:    emergencyService,
		Monitor:      txMonitor,
		Ledger:       ledgerClient,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost%s", addr)
	log.Printf("✅ Phase scanner running (every %s)", cfg.Engine.PhaseScanInterval)
	log.Printf("✅ Distribution scanner running (every %s)", cfg.Engine.DistributionScanInterval)
	log.Printf("✅ Transaction polling running (every %s)", cfg.Engine.TxPollInterval)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", originsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = sched.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(shutdownCtx)
}
