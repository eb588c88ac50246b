package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"companion-bot/backend/internal/api"
	"companion-bot/backend/internal/models"
	"companion-bot/backend/pkg/config"
	"companion-bot/backend/pkg/di"
	"companion-bot/backend/pkg/logger"
	"companion-bot/backend/pkg/observability"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"))

	shutdownTracing := observability.SetupTracing("companion-bot")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	// Initialize database. DEMO_MODE runs without Postgres on the
	// in-process store.
	var db *gorm.DB
	if os.Getenv("DEMO_MODE") == "true" {
		log.Warn("Demo mode: running without a database")
	} else {
		var err error
		db, err = config.NewDB()
		if err != nil {
			log.LogError(err, "Failed to initialize database")
			os.Exit(1)
		}
	}

	if db != nil {
		// Auto-migrate the schema
		if err := db.AutoMigrate(
			&models.User{},
			&models.Message{},
			&models.CrisisIncident{},
			&models.TrackedEvent{},
			&models.ScheduledFollowup{},
			&models.StyleProfile{},
			&models.RateWindow{},
		); err != nil {
			log.LogError(err, "Failed to migrate database")
			os.Exit(1)
		}

		// Create indexes for better query performance. The partial unique
		// index backs exactly-once follow-up enqueueing per (event, offset).
		if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_followups_event_offset_pending ON scheduled_followups(event_id, "offset") WHERE status = 'pending'`).Error; err != nil {
			log.LogError(err, "Failed to create follow-up index", "index", "idx_followups_event_offset_pending")
		}
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_user_ts ON messages(user_id, timestamp)").Error; err != nil {
			log.LogError(err, "Failed to create message index", "index", "idx_messages_user_ts")
		}
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_followups_status_send_at ON scheduled_followups(status, send_at)").Error; err != nil {
			log.LogError(err, "Failed to create follow-up index", "index", "idx_followups_status_send_at")
		}
	}

	// Initialize dependency injection container
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.New(ctx, db, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	defer container.Close()

	// Start the follow-up scheduler loop
	container.Scheduler.Start(ctx)

	engine := api.NewRouter(cfg, container.Pipeline, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a signal
	<-quit
	log.Info("Shutting down server...")

	container.Scheduler.Stop()
	cancel()

	// Create a deadline to wait for
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown the server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	log.Info("Server exited gracefully")
}
