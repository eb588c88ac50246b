package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-bot/backend/internal/store"
	"companion-bot/backend/pkg/logger"
)

func testLearner(t *testing.T) (*Learner, *store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	log := logger.New(logger.Config{Level: "error"})
	return NewLearner(Config{WindowSize: 50, MinSamples: 5}, st.Styles, log), st
}

func TestAdaptIsNoOpBelowMinSamples(t *testing.T) {
	learner, _ := testLearner(t)
	const userID = 1

	// 3 < 5 observations: draft must come back untouched.
	for i := 0; i < 3; i++ {
		require.NoError(t, learner.Observe(userID, "hey gonna be late lol"))
	}

	draft := "Hello there. I would like to check in with you."
	adapted, err := learner.Adapt(userID, draft)
	require.NoError(t, err)
	assert.Equal(t, draft, adapted)
}

func TestAdaptUnknownUserIsNoOp(t *testing.T) {
	learner, _ := testLearner(t)

	draft := "Hi! How are you today?"
	adapted, err := learner.Adapt(42, draft)
	require.NoError(t, err)
	assert.Equal(t, draft, adapted)
}

func TestObserveTracksGreetingHistogram(t *testing.T) {
	learner, st := testLearner(t)
	const userID = 1

	for i := 0; i < 6; i++ {
		require.NoError(t, learner.Observe(userID, "hey, checking in"))
	}
	require.NoError(t, learner.Observe(userID, "hi there"))

	profile, err := st.Styles.Get(userID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 6, profile.GreetingHey)
	assert.Equal(t, 1, profile.GreetingHi)
	assert.Equal(t, "Hey", profile.PreferredGreeting())
	assert.Equal(t, 7, profile.SampleCount)
}

func TestAdaptSwapsGreeting(t *testing.T) {
	learner, _ := testLearner(t)
	const userID = 1

	for i := 0; i < 6; i++ {
		require.NoError(t, learner.Observe(userID, "hey how's it going"))
	}

	adapted, err := learner.Adapt(userID, "Hi John, how are you feeling today?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(adapted, "Hey "), "got %q", adapted)
}

func TestAdaptCasualFormality(t *testing.T) {
	learner, _ := testLearner(t)
	const userID = 1

	for i := 0; i < 6; i++ {
		require.NoError(t, learner.Observe(userID, "yeah lol gonna try that"))
	}

	adapted, err := learner.Adapt(userID, "I would suggest a short walk. You are doing well.")
	require.NoError(t, err)
	assert.Contains(t, adapted, "I'd suggest")
	assert.Contains(t, adapted, "You're doing well")
}

func TestAdaptFormalFormality(t *testing.T) {
	learner, _ := testLearner(t)
	const userID = 1

	for i := 0; i < 6; i++ {
		require.NoError(t, learner.Observe(userID, "thank you, I appreciate your help, please continue"))
	}

	adapted, err := learner.Adapt(userID, "I'm glad you wrote. I'd suggest a short walk.")
	require.NoError(t, err)
	assert.Contains(t, adapted, "I am glad")
	assert.Contains(t, adapted, "I would suggest")
}

func TestAdaptShortensForShortWriters(t *testing.T) {
	learner, _ := testLearner(t)
	const userID = 1

	for i := 0; i < 6; i++ {
		require.NoError(t, learner.Observe(userID, "ok"))
	}

	long := "First sentence here. Second sentence here. Third sentence here. " +
		"Fourth sentence here. Fifth sentence goes on for quite a while to push the draft over the length gate."
	adapted, err := learner.Adapt(userID, long)
	require.NoError(t, err)
	assert.Less(t, len(adapted), len(long))
	assert.Contains(t, adapted, "First sentence here.")
	assert.NotContains(t, adapted, "Third sentence")
}

func TestObserveEWMAConverges(t *testing.T) {
	learner, st := testLearner(t)
	const userID = 1

	// Long messages first, then a long run of very short ones. The
	// average must drift toward the recent behavior.
	require.NoError(t, learner.Observe(userID, strings.Repeat("long message ", 20)))
	after1, err := st.Styles.Get(userID)
	require.NoError(t, err)
	start := after1.AvgLength

	for i := 0; i < 100; i++ {
		require.NoError(t, learner.Observe(userID, "ok"))
	}
	profile, err := st.Styles.Get(userID)
	require.NoError(t, err)
	assert.Less(t, profile.AvgLength, start/2, "average length should decay toward recent short messages")
}
