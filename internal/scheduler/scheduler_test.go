package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-bot/backend/internal/models"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/pkg/logger"
)

// recordingDelivery counts sends and can be told to fail.
type recordingDelivery struct {
	mu    sync.Mutex
	sent  []string
	fails bool
}

func (d *recordingDelivery) Send(_ context.Context, externalUserID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fails {
		return errors.New("gateway unavailable")
	}
	d.sent = append(d.sent, externalUserID+": "+text)
	return nil
}

func (d *recordingDelivery) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func testSetup(t *testing.T) (*Scheduler, *store.Store, *recordingDelivery, *models.User) {
	t.Helper()
	st := store.NewMemoryStore()
	delivery := &recordingDelivery{}
	log := logger.New(logger.Config{Level: "error"})
	sched := New(Config{SendHour: 9}, st, delivery, log)

	user, _, err := st.Users.GetOrCreate("+15550001111", time.Now())
	require.NoError(t, err)
	return sched, st, delivery, user
}

func makeEvent(t *testing.T, st *store.Store, userID uint, date time.Time) *models.TrackedEvent {
	t.Helper()
	ev := &models.TrackedEvent{
		UserID:      userID,
		Type:        models.EventTest,
		Description: "math test",
		EventDate:   date,
	}
	require.NoError(t, st.Events.Create(ev))
	return ev
}

func TestEnqueueForEventCreatesPair(t *testing.T) {
	sched, st, _, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	eventDate := time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, eventDate)

	require.NoError(t, sched.EnqueueForEvent(ev, now))

	before, err := st.Followups.CountPending(ev.ID, models.OffsetBefore)
	require.NoError(t, err)
	after, err := st.Followups.CountPending(ev.ID, models.OffsetAfter)
	require.NoError(t, err)
	assert.EqualValues(t, 1, before)
	assert.EqualValues(t, 1, after)

	// Before fires at 9 AM the day before, after at 9 AM the day after.
	due, err := st.Followups.DueBefore(time.Date(2025, time.March, 6, 9, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.OffsetBefore, due[0].Offset)
	assert.Equal(t, time.Date(2025, time.March, 6, 9, 0, 0, 0, time.UTC), due[0].SendAt)
}

func TestEnqueueForEventIsIdempotent(t *testing.T) {
	sched, st, _, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))

	require.NoError(t, sched.EnqueueForEvent(ev, now))
	require.NoError(t, sched.EnqueueForEvent(ev, now))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	before, _ := st.Followups.CountPending(ev.ID, models.OffsetBefore)
	after, _ := st.Followups.CountPending(ev.ID, models.OffsetAfter)
	assert.EqualValues(t, 1, before, "duplicate enqueue must be a no-op")
	assert.EqualValues(t, 1, after)
}

func TestEnqueueSkipsPastBeforeReminder(t *testing.T) {
	sched, st, _, user := testSetup(t)

	// Event is tomorrow at noon, so the "before" anchor (9 AM today) has
	// already passed by 10 AM.
	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC))

	require.NoError(t, sched.EnqueueForEvent(ev, now))

	before, _ := st.Followups.CountPending(ev.ID, models.OffsetBefore)
	after, _ := st.Followups.CountPending(ev.ID, models.OffsetAfter)
	assert.EqualValues(t, 0, before)
	assert.EqualValues(t, 1, after)
}

func TestTickDeliversDueRowsExactlyOnce(t *testing.T) {
	sched, st, delivery, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	// Advance past the "before" send time and tick twice in succession.
	tickAt := time.Date(2025, time.March, 6, 9, 30, 0, 0, time.UTC)
	require.NoError(t, sched.Tick(context.Background(), tickAt))
	require.NoError(t, sched.Tick(context.Background(), tickAt))

	assert.Equal(t, 1, delivery.count(), "double tick must not double-send")

	before, _ := st.Followups.CountPending(ev.ID, models.OffsetBefore)
	assert.EqualValues(t, 0, before)
}

func TestTickMarksFailedAndContinues(t *testing.T) {
	sched, st, delivery, user := testSetup(t)
	delivery.fails = true

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	tickAt := time.Date(2025, time.March, 6, 9, 30, 0, 0, time.UTC)
	require.NoError(t, sched.Tick(context.Background(), tickAt))

	// The row landed in failed, not pending, and was not retried.
	before, _ := st.Followups.CountPending(ev.ID, models.OffsetBefore)
	assert.EqualValues(t, 0, before)

	require.NoError(t, sched.Tick(context.Background(), tickAt))
	assert.Equal(t, 0, delivery.count())
}

func TestCancelDropsPendingRows(t *testing.T) {
	sched, st, delivery, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	require.NoError(t, sched.CompleteEvent(ev.ID))

	// Nothing left to send.
	tickAt := time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, sched.Tick(context.Background(), tickAt))
	assert.Equal(t, 0, delivery.count())

	open, err := st.Events.ListOpen(user.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTickCompletesPastEvents(t *testing.T) {
	sched, st, delivery, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	// Months later: reminders are stale and the event itself is history.
	tickAt := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sched.Tick(context.Background(), tickAt))

	assert.Equal(t, 0, delivery.count())
	open, err := st.Events.ListOpen(user.ID)
	require.NoError(t, err)
	assert.Empty(t, open, "a long-past event must not stay open")
}

func TestTickSendsAfterCheckInBeforeCompleting(t *testing.T) {
	sched, st, delivery, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	// The morning after the event is inside the grace period: the
	// day-after check-in goes out and the event is not yet closed, so the
	// user's reply can still complete it from conversation.
	tickAt := time.Date(2025, time.March, 8, 9, 30, 0, 0, time.UTC)
	require.NoError(t, sched.Tick(context.Background(), tickAt))

	assert.Equal(t, 1, delivery.count())
	open, err := st.Events.ListOpen(user.ID)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestTickFailsStuckSendingRows(t *testing.T) {
	sched, st, delivery, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	due, err := st.Followups.DueBefore(time.Date(2025, time.March, 6, 9, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	// Claim the row as a crashed instance would, then tick well past the
	// sending timeout.
	claimedAt := time.Date(2025, time.March, 6, 9, 30, 0, 0, time.UTC)
	claimed, err := st.Followups.Claim(due[0].ID, claimedAt)
	require.NoError(t, err)
	require.True(t, claimed)

	tickAt := claimedAt.Add(10 * time.Minute)
	require.NoError(t, sched.Tick(context.Background(), tickAt))

	assert.Equal(t, 0, delivery.count(), "a stranded row is never redelivered")

	// The row reached a terminal state: it cannot be claimed again and a
	// later sweep finds nothing left in sending.
	claimed, err = st.Followups.Claim(due[0].ID, tickAt)
	require.NoError(t, err)
	assert.False(t, claimed)

	n, err := st.Followups.FailStuck(tickAt.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestTickCancelsStaleRows(t *testing.T) {
	sched, st, delivery, user := testSetup(t)

	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(t, st, user.ID, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC))
	require.NoError(t, sched.EnqueueForEvent(ev, now))

	// Tick far past the grace period: both rows should be cancelled, not
	// sent days late.
	tickAt := time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, sched.Tick(context.Background(), tickAt))

	assert.Equal(t, 0, delivery.count())
	before, _ := st.Followups.CountPending(ev.ID, models.OffsetBefore)
	after, _ := st.Followups.CountPending(ev.ID, models.OffsetAfter)
	assert.EqualValues(t, 0, before)
	assert.EqualValues(t, 0, after)
}
