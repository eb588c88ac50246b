package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Redis configuration (optional rate-window backend)
	Redis struct {
		Enabled bool
		Addr    string
	}

	// Safety gate configuration
	Safety struct {
		Enabled       bool
		CrisisHotline string
	}

	// Semantic routing configuration
	Routing struct {
		ConfidenceFloor   float64
		DefaultCapability string
		EmbedTimeout      time.Duration
		EmbedCacheTTL     time.Duration
	}

	// Follow-up scheduler configuration
	Scheduler struct {
		TickInterval   time.Duration
		BatchSize      int
		GracePeriod    time.Duration
		SendHour       int
		SendingTimeout time.Duration
	}

	// Style learner configuration
	Style struct {
		WindowSize int
		MinSamples int
	}

	// Per-user hourly rate limiting
	RateLimit struct {
		MessagesPerHour int
		Window          time.Duration
	}

	// Event extraction configuration
	Events struct {
		// SameWeekdayIsToday resolves a weekday name spoken on that
		// weekday to today instead of next week.
		SameWeekdayIsToday bool
	}

	// Outbound delivery configuration
	Delivery struct {
		WebhookURL string
		Timeout    time.Duration
	}

	// Transport-level rate limiting
	Security struct {
		RateLimit      float64
		RateLimitBurst int
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8081")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "companion-bot")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// Redis config
		instance.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
		instance.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")

		// Safety config
		instance.Safety.Enabled = getEnvBool("CRISIS_DETECTION_ENABLED", true)
		instance.Safety.CrisisHotline = getEnvString("CRISIS_HOTLINE", "988")

		// Routing config
		instance.Routing.ConfidenceFloor = getEnvFloat("ROUTING_CONFIDENCE_FLOOR", 0.3)
		instance.Routing.DefaultCapability = getEnvString("ROUTING_DEFAULT_CAPABILITY", "cbt")
		instance.Routing.EmbedTimeout = getEnvDuration("EMBED_TIMEOUT", 10*time.Second)
		instance.Routing.EmbedCacheTTL = getEnvDuration("EMBED_CACHE_TTL", 5*time.Minute)

		// Scheduler config
		instance.Scheduler.TickInterval = getEnvDuration("SCHEDULER_TICK_INTERVAL", time.Minute)
		instance.Scheduler.BatchSize = getEnvInt("SCHEDULER_BATCH_SIZE", 10)
		instance.Scheduler.GracePeriod = getEnvDuration("SCHEDULER_GRACE_PERIOD", 24*time.Hour)
		instance.Scheduler.SendHour = getEnvInt("SCHEDULER_SEND_HOUR", 9)
		instance.Scheduler.SendingTimeout = getEnvDuration("SCHEDULER_SENDING_TIMEOUT", 5*time.Minute)

		// Style config
		instance.Style.WindowSize = getEnvInt("STYLE_WINDOW_SIZE", 50)
		instance.Style.MinSamples = getEnvInt("STYLE_MIN_SAMPLES", 5)

		// Rate limit config
		instance.RateLimit.MessagesPerHour = getEnvInt("MAX_MESSAGES_PER_HOUR", 30)
		instance.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", time.Hour)

		// Event extraction config
		instance.Events.SameWeekdayIsToday = getEnvBool("EVENTS_SAME_WEEKDAY_IS_TODAY", false)

		// Delivery config
		instance.Delivery.WebhookURL = getEnvString("DELIVERY_WEBHOOK_URL", "")
		instance.Delivery.Timeout = getEnvDuration("DELIVERY_TIMEOUT", 10*time.Second)

		// Transport rate limit
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
