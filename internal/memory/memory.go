package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"companion-bot/backend/ai"
	"companion-bot/backend/internal/models"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/pkg/logger"
)

// Config tunes conversation memory and the per-user hourly ceiling.
type Config struct {
	// HistoryLimit is the default number of turns handed to capabilities.
	HistoryLimit int
	// MessagesPerHour is the per-user inbound ceiling.
	MessagesPerHour int
	// Window is the rolling window length.
	Window time.Duration
}

func (c *Config) defaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.MessagesPerHour <= 0 {
		c.MessagesPerHour = 30
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
}

// Memory provides bounded history retrieval and the atomic rate check.
// When a redis client is supplied, the rate window lives there (shared
// across instances); otherwise it falls back to the store-backed window.
type Memory struct {
	cfg      Config
	messages store.MessageStore
	rates    store.RateStore
	redis    *redis.Client
	log      *logger.Logger
}

func New(cfg Config, st *store.Store, redisClient *redis.Client, log *logger.Logger) *Memory {
	cfg.defaults()
	return &Memory{
		cfg:      cfg,
		messages: st.Messages,
		rates:    st.Rates,
		redis:    redisClient,
		log:      log.WithComponent("memory"),
	}
}

// History returns up to limit recent turns in chronological order, oldest
// first. Zero or negative limit uses the configured default.
func (m *Memory) History(userID uint, limit int) ([]ai.Turn, error) {
	if limit <= 0 {
		limit = m.cfg.HistoryLimit
	}
	msgs, err := m.messages.Recent(userID, limit)
	if err != nil {
		return nil, err
	}
	turns := make([]ai.Turn, 0, len(msgs))
	for _, msg := range msgs {
		turns = append(turns, ai.Turn{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	return turns, nil
}

// RawHistory returns the stored message records, oldest first.
func (m *Memory) RawHistory(userID uint, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = m.cfg.HistoryLimit
	}
	return m.messages.Recent(userID, limit)
}

// CheckAndIncrement atomically consumes one rate slot for the user.
// Returns allowed=false when the hourly ceiling is reached. The check
// and the increment are a single operation in the backing store.
func (m *Memory) CheckAndIncrement(ctx context.Context, userID uint, now time.Time) (allowed bool, remaining int, err error) {
	if m.redis != nil {
		return m.checkRedis(ctx, userID)
	}
	return m.rates.CheckAndIncrement(userID, now, m.cfg.Window, m.cfg.MessagesPerHour)
}

// checkRedis uses INCR with a window-scoped expiry. INCR is atomic, so
// concurrent instances share one correct counter.
func (m *Memory) checkRedis(ctx context.Context, userID uint) (bool, int, error) {
	key := fmt.Sprintf("ratewindow:%d", userID)

	count, err := m.redis.Incr(ctx, key).Result()
	if err != nil {
		// Redis being down must not take messaging down with it. Fail
		// open and log loudly.
		m.log.LogError(err, "Rate window check failed, allowing message", "user_id", userID)
		return true, 0, nil
	}
	if count == 1 {
		if err := m.redis.Expire(ctx, key, m.cfg.Window).Err(); err != nil {
			m.log.LogError(err, "Failed to set rate window expiry", "user_id", userID)
		}
	}
	if count > int64(m.cfg.MessagesPerHour) {
		return false, 0, nil
	}
	return true, m.cfg.MessagesPerHour - int(count), nil
}
