package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-bot/backend/ai"
	"companion-bot/backend/internal/events"
	"companion-bot/backend/internal/memory"
	"companion-bot/backend/internal/models"
	"companion-bot/backend/internal/routing"
	"companion-bot/backend/internal/safety"
	"companion-bot/backend/internal/scheduler"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/internal/style"
	"companion-bot/backend/pkg/logger"
)

type nullDelivery struct{}

func (nullDelivery) Send(context.Context, string, string) error { return nil }

func newTestPipeline(t *testing.T, rateCeiling int) (*Pipeline, *store.Store) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	st := store.NewMemoryStore()
	registry := ai.DefaultRegistry()

	router, err := routing.NewRouter(
		context.Background(),
		ai.NewHashingEmbedder(256),
		registry,
		routing.Config{ConfidenceFloor: 0.05, DefaultCapability: "cbt", EmbedTimeout: time.Second},
		log,
	)
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{SendHour: 9}, st, nullDelivery{}, log)

	p := New(
		st,
		safety.NewGate(safety.DefaultCatalog(), true, log),
		safety.NewResponder("988"),
		router,
		events.NewExtractor(events.WeekdayNextWeek, log),
		sched,
		style.NewLearner(style.Config{WindowSize: 50, MinSamples: 5}, st.Styles, log),
		memory.New(memory.Config{HistoryLimit: 10, MessagesPerHour: rateCeiling, Window: time.Hour}, st, nil, log),
		registry,
		log,
	)
	return p, st
}

var inboundAt = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

func TestProcessInboundCrisisShortCircuits(t *testing.T) {
	p, st := newTestPipeline(t, 30)

	res, err := p.ProcessInbound(context.Background(), "user-1", "I want to kill myself", inboundAt)
	require.NoError(t, err)

	assert.True(t, res.Crisis)
	assert.Equal(t, "suicide", res.CrisisCategory)
	assert.Contains(t, res.ReplyText, "988")
	assert.Empty(t, res.CapabilityUsed, "crisis turns skip routing")
	assert.Zero(t, res.EventsTracked)

	user, err := st.Users.GetByExternalID("user-1")
	require.NoError(t, err)
	assert.True(t, user.IsFlagged)

	incidents, err := st.Incidents.ListByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, models.CrisisSuicide, incidents[0].Category)

	// No follow-ups may be created for a crisis turn, even when the text
	// carries event-like words.
	res, err = p.ProcessInbound(context.Background(), "user-1",
		"I'm going to kill myself before my test tomorrow", inboundAt)
	require.NoError(t, err)
	require.True(t, res.Crisis)

	due, err := st.Followups.DueBefore(inboundAt.AddDate(1, 0, 0), 100)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestProcessInboundNormalFlow(t *testing.T) {
	p, st := newTestPipeline(t, 30)

	res, err := p.ProcessInbound(context.Background(), "user-1",
		"I'm really anxious about my test on Friday", inboundAt)
	require.NoError(t, err)

	assert.False(t, res.Crisis)
	assert.False(t, res.Limited)
	assert.NotEmpty(t, res.ReplyText)
	assert.Equal(t, 1, res.EventsTracked)

	// Routed capability must be a registered one.
	_, ok := ai.DefaultRegistry().Get(res.CapabilityUsed)
	assert.True(t, ok, "capability %q not registered", res.CapabilityUsed)

	user, err := st.Users.GetByExternalID("user-1")
	require.NoError(t, err)

	open, err := st.Events.ListOpen(user.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.EventTest, open[0].Type)

	before, _ := st.Followups.CountPending(open[0].ID, models.OffsetBefore)
	after, _ := st.Followups.CountPending(open[0].ID, models.OffsetAfter)
	assert.EqualValues(t, 1, before)
	assert.EqualValues(t, 1, after)

	// Both turns persisted.
	msgs, err := st.Messages.Recent(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, res.CapabilityUsed, msgs[1].Capability)
}

func TestProcessInboundFirstContactWelcome(t *testing.T) {
	p, _ := newTestPipeline(t, 30)

	res, err := p.ProcessInbound(context.Background(), "new-user", "hello, feeling stressed", inboundAt)
	require.NoError(t, err)
	assert.Contains(t, res.ReplyText, "Welcome")

	res, err = p.ProcessInbound(context.Background(), "new-user", "still stressed", inboundAt.Add(time.Minute))
	require.NoError(t, err)
	assert.NotContains(t, res.ReplyText, "Welcome")
}

func TestProcessInboundRateCeiling(t *testing.T) {
	p, st := newTestPipeline(t, 3)

	for i := 0; i < 3; i++ {
		res, err := p.ProcessInbound(context.Background(), "user-1", "feeling stressed", inboundAt)
		require.NoError(t, err)
		assert.False(t, res.Limited)
	}

	res, err := p.ProcessInbound(context.Background(), "user-1", "one more message", inboundAt)
	require.NoError(t, err)
	assert.True(t, res.Limited)
	assert.Contains(t, res.ReplyText, "pause")

	// Limited turns are not persisted.
	user, err := st.Users.GetByExternalID("user-1")
	require.NoError(t, err)
	msgs, err := st.Messages.Recent(user.ID, 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 6, "3 accepted turns produce 6 messages, limited turn none")
}

func TestProcessInboundCrisisBypassesRateLimit(t *testing.T) {
	p, st := newTestPipeline(t, 2)

	for i := 0; i < 2; i++ {
		_, err := p.ProcessInbound(context.Background(), "user-1", "feeling stressed", inboundAt)
		require.NoError(t, err)
	}
	res, err := p.ProcessInbound(context.Background(), "user-1", "another message", inboundAt)
	require.NoError(t, err)
	require.True(t, res.Limited)

	// A crisis message still goes through at the ceiling.
	res, err = p.ProcessInbound(context.Background(), "user-1", "I want to kill myself", inboundAt)
	require.NoError(t, err)
	assert.True(t, res.Crisis)
	assert.False(t, res.Limited)
	assert.Contains(t, res.ReplyText, "988")

	user, err := st.Users.GetByExternalID("user-1")
	require.NoError(t, err)
	incidents, err := st.Incidents.ListByUser(user.ID)
	require.NoError(t, err)
	assert.Len(t, incidents, 1)
}

func TestProcessInboundCompletesPastEvents(t *testing.T) {
	p, st := newTestPipeline(t, 30)

	// Track an event dated before "now" at completion time.
	_, err := p.ProcessInbound(context.Background(), "user-1",
		"I have a test tomorrow", inboundAt)
	require.NoError(t, err)

	user, err := st.Users.GetByExternalID("user-1")
	require.NoError(t, err)
	open, err := st.Events.ListOpen(user.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	// Two days later the user reports it went well.
	later := inboundAt.AddDate(0, 0, 2)
	_, err = p.ProcessInbound(context.Background(), "user-1", "my test went well!", later)
	require.NoError(t, err)

	open, err = st.Events.ListOpen(user.ID)
	require.NoError(t, err)
	assert.Empty(t, open, "completed event should be closed")

	due, err := st.Followups.DueBefore(later.AddDate(1, 0, 0), 100)
	require.NoError(t, err)
	assert.Empty(t, due, "pending follow-ups cancelled on completion")
}

func TestStatsAndHistorySurface(t *testing.T) {
	p, _ := newTestPipeline(t, 30)

	_, err := p.ProcessInbound(context.Background(), "user-1", "hey, feeling anxious", inboundAt)
	require.NoError(t, err)

	stats, err := p.Stats("user-1", inboundAt)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stats.ExternalID)
	assert.Equal(t, 1, stats.MessageCount)
	assert.EqualValues(t, 1, stats.MessagesLastHour)
	assert.False(t, stats.IsFlagged)
	assert.Equal(t, 1, stats.StyleSamples)

	history, err := p.History("user-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// The rolling count moves with the clock while the total does not.
	stats, err = p.Stats("user-1", inboundAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MessageCount)
	assert.EqualValues(t, 0, stats.MessagesLastHour)

	_, err = p.Stats("nobody", inboundAt)
	assert.Error(t, err)
}

func TestTestRoutingReturnsFullScores(t *testing.T) {
	p, _ := newTestPipeline(t, 30)

	d := p.TestRouting(context.Background(), "I keep procrastinating on my goals")
	require.NotNil(t, d)
	assert.Len(t, d.Scores, 3)

	max := -1.0
	for _, s := range d.Scores {
		if s > max {
			max = s
		}
	}
	if !d.Fallback {
		assert.InDelta(t, max, d.Confidence, 1e-9)
	}
}
