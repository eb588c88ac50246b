package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-bot/backend/internal/models"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/pkg/logger"
)

func testMemory(t *testing.T, cfg Config) (*Memory, *store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	log := logger.New(logger.Config{Level: "error"})
	return New(cfg, st, nil, log), st
}

func seedMessages(t *testing.T, st *store.Store, userID uint, n int) {
	t.Helper()
	base := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		require.NoError(t, st.Messages.Create(&models.Message{
			UserID:    userID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestHistoryChronologicalOrder(t *testing.T) {
	mem, st := testMemory(t, Config{HistoryLimit: 10})
	seedMessages(t, st, 1, 5)

	turns, err := mem.History(1, 10)
	require.NoError(t, err)
	require.Len(t, turns, 5)

	for i := 1; i < len(turns); i++ {
		assert.True(t, !turns[i].Timestamp.Before(turns[i-1].Timestamp),
			"history must be oldest first")
	}
	assert.Equal(t, "message 0", turns[0].Content)
	assert.Equal(t, "message 4", turns[4].Content)
}

func TestHistoryRespectsLimit(t *testing.T) {
	mem, st := testMemory(t, Config{HistoryLimit: 10})
	seedMessages(t, st, 1, 25)

	turns, err := mem.History(1, 10)
	require.NoError(t, err)
	require.Len(t, turns, 10)

	// The limit keeps the newest messages, still oldest-first.
	assert.Equal(t, "message 15", turns[0].Content)
	assert.Equal(t, "message 24", turns[9].Content)
}

func TestHistoryDefaultLimit(t *testing.T) {
	mem, st := testMemory(t, Config{HistoryLimit: 3})
	seedMessages(t, st, 1, 10)

	turns, err := mem.History(1, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 3)
}

func TestHistoryIsolatesUsers(t *testing.T) {
	mem, st := testMemory(t, Config{})
	seedMessages(t, st, 1, 3)
	seedMessages(t, st, 2, 4)

	turns, err := mem.History(1, 10)
	require.NoError(t, err)
	assert.Len(t, turns, 3)
}

func TestCheckAndIncrementCeiling(t *testing.T) {
	mem, _ := testMemory(t, Config{MessagesPerHour: 3, Window: time.Hour})
	now := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, err := mem.CheckAndIncrement(ctx, 1, now)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, _, err := mem.CheckAndIncrement(ctx, 1, now)
	require.NoError(t, err)
	assert.False(t, allowed, "fourth message in the window must be limited")

	// A different user is unaffected.
	allowed, _, err = mem.CheckAndIncrement(ctx, 2, now)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckAndIncrementWindowReset(t *testing.T) {
	mem, _ := testMemory(t, Config{MessagesPerHour: 2, Window: time.Hour})
	now := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := mem.CheckAndIncrement(ctx, 1, now)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, _, err := mem.CheckAndIncrement(ctx, 1, now)
	require.NoError(t, err)
	require.False(t, allowed)

	// After the window expires the counter resets.
	later := now.Add(time.Hour + time.Minute)
	allowed, remaining, err := mem.CheckAndIncrement(ctx, 1, later)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}
