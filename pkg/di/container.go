package di

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"companion-bot/backend/ai"
	"companion-bot/backend/internal/events"
	"companion-bot/backend/internal/memory"
	"companion-bot/backend/internal/pipeline"
	"companion-bot/backend/internal/routing"
	"companion-bot/backend/internal/safety"
	"companion-bot/backend/internal/scheduler"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/internal/style"
	"companion-bot/backend/pkg/config"
	"companion-bot/backend/pkg/logger"
)

// Container holds all the dependencies for the application
type Container struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Logger    *logger.Logger
	Store     *store.Store
	Embedder  ai.EmbeddingProvider
	Registry  *ai.Registry
	Gate      *safety.Gate
	Responder *safety.Responder
	Router    *routing.Router
	Extractor *events.Extractor
	Scheduler *scheduler.Scheduler
	Learner   *style.Learner
	Memory    *memory.Memory
	Pipeline  *pipeline.Pipeline
}

// New wires the full conversation pipeline from configuration. A nil db
// switches the container to the in-process store, which is what demo
// mode and local development without Postgres use.
func New(ctx context.Context, db *gorm.DB, cfg *config.Config, log *logger.Logger) (*Container, error) {
	if cfg == nil {
		cfg = config.Get()
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	var st *store.Store
	if db != nil {
		st = store.NewGormStore(db)
	} else {
		log.Warn("No database configured, using in-process store")
		st = store.NewMemoryStore()
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.LogError(err, "Redis unreachable, rate windows fall back to the store")
			redisClient = nil
		}
	}

	embedder, err := ai.NewEmbedderFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	registry := ai.DefaultRegistry()

	router, err := routing.NewRouter(ctx, embedder, registry, routing.Config{
		ConfidenceFloor:   cfg.Routing.ConfidenceFloor,
		DefaultCapability: cfg.Routing.DefaultCapability,
		EmbedTimeout:      cfg.Routing.EmbedTimeout,
		EmbedCacheTTL:     cfg.Routing.EmbedCacheTTL,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	weekdayPolicy := events.WeekdayNextWeek
	if cfg.Events.SameWeekdayIsToday {
		weekdayPolicy = events.WeekdayToday
	}

	var delivery ai.MessageDelivery
	if cfg.Delivery.WebhookURL != "" {
		delivery = ai.NewWebhookDelivery(cfg.Delivery.WebhookURL, cfg.Delivery.Timeout)
	} else {
		delivery = ai.NewLogDelivery(log)
	}

	sched := scheduler.New(scheduler.Config{
		TickInterval:    cfg.Scheduler.TickInterval,
		BatchSize:       cfg.Scheduler.BatchSize,
		GracePeriod:     cfg.Scheduler.GracePeriod,
		SendHour:        cfg.Scheduler.SendHour,
		DeliveryTimeout: cfg.Delivery.Timeout,
		SendingTimeout:  cfg.Scheduler.SendingTimeout,
	}, st, delivery, log)

	gate := safety.NewGate(safety.DefaultCatalog(), cfg.Safety.Enabled, log)
	responder := safety.NewResponder(cfg.Safety.CrisisHotline)
	extractor := events.NewExtractor(weekdayPolicy, log)
	learner := style.NewLearner(style.Config{
		WindowSize: cfg.Style.WindowSize,
		MinSamples: cfg.Style.MinSamples,
	}, st.Styles, log)
	mem := memory.New(memory.Config{
		HistoryLimit:    10,
		MessagesPerHour: cfg.RateLimit.MessagesPerHour,
		Window:          cfg.RateLimit.Window,
	}, st, redisClient, log)

	p := pipeline.New(st, gate, responder, router, extractor, sched, learner, mem, registry, log)

	return &Container{
		DB:        db,
		Redis:     redisClient,
		Logger:    log,
		Store:     st,
		Embedder:  embedder,
		Registry:  registry,
		Gate:      gate,
		Responder: responder,
		Router:    router,
		Extractor: extractor,
		Scheduler: sched,
		Learner:   learner,
		Memory:    mem,
		Pipeline:  p,
	}, nil
}

// Close releases connections held by the container.
func (c *Container) Close() error {
	c.Scheduler.Stop()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			return err
		}
	}
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
