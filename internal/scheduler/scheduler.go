package scheduler

import (
	"context"
	"sync"
	"time"

	"companion-bot/backend/ai"
	"companion-bot/backend/internal/models"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/pkg/logger"
	"companion-bot/backend/pkg/metrics"
	"companion-bot/backend/pkg/resilience"
)

// Config tunes the follow-up scheduler.
type Config struct {
	// TickInterval is the polling cadence.
	TickInterval time.Duration
	// BatchSize caps how many due rows one tick dispatches.
	BatchSize int
	// GracePeriod is how long past its send time a pending row may sit
	// before it is cancelled as stale instead of sent.
	GracePeriod time.Duration
	// SendHour anchors follow-up send times (local hour of day).
	SendHour int
	// DeliveryTimeout bounds each send call.
	DeliveryTimeout time.Duration
	// SendingTimeout is how long a claimed row may sit in sending before
	// it is presumed interrupted by a crash and marked failed.
	SendingTimeout time.Duration
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 24 * time.Hour
	}
	if c.SendHour <= 0 || c.SendHour > 23 {
		c.SendHour = 9
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	if c.SendingTimeout <= 0 {
		c.SendingTimeout = 5 * time.Minute
	}
}

// Scheduler owns the ScheduledFollowup lifecycle. It is the only writer
// that transitions follow-up status.
type Scheduler struct {
	cfg       Config
	followups store.FollowupStore
	events    store.EventStore
	users     store.UserStore
	delivery  ai.MessageDelivery
	breaker   *resilience.CircuitBreaker
	log       *logger.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

func New(cfg Config, st *store.Store, delivery ai.MessageDelivery, log *logger.Logger) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		cfg:       cfg,
		followups: st.Followups,
		events:    st.Events,
		users:     st.Users,
		delivery:  delivery,
		breaker:   resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("followup-delivery"), log),
		log:       log.WithComponent("scheduler"),
		stopped:   make(chan struct{}),
	}
}

// EnqueueForEvent schedules the before/after check-in pair for a freshly
// extracted event. Enqueue conflicts are no-ops, so re-processing the
// same event never produces duplicate reminders. The "before" reminder
// is skipped when its send time is already in the past.
func (s *Scheduler) EnqueueForEvent(event *models.TrackedEvent, now time.Time) error {
	before := s.sendAnchor(event.EventDate.AddDate(0, 0, -1))
	after := s.sendAnchor(event.EventDate.AddDate(0, 0, 1))

	if before.After(now) {
		created, err := s.followups.Enqueue(&models.ScheduledFollowup{
			UserID:  event.UserID,
			EventID: event.ID,
			Offset:  models.OffsetBefore,
			Content: followupMessage(event, models.OffsetBefore),
			SendAt:  before,
			Status:  models.FollowupPending,
		})
		if err != nil {
			return err
		}
		if created {
			metrics.FollowupTransitions.WithLabelValues("pending").Inc()
		}
	}

	created, err := s.followups.Enqueue(&models.ScheduledFollowup{
		UserID:  event.UserID,
		EventID: event.ID,
		Offset:  models.OffsetAfter,
		Content: followupMessage(event, models.OffsetAfter),
		SendAt:  after,
		Status:  models.FollowupPending,
	})
	if err != nil {
		return err
	}
	if created {
		metrics.FollowupTransitions.WithLabelValues("pending").Inc()
	}
	return nil
}

// sendAnchor pins a date to the configured send hour.
func (s *Scheduler) sendAnchor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), s.cfg.SendHour, 0, 0, 0, t.Location())
}

// Cancel transitions all pending follow-ups for an event to cancelled.
// Rows already claimed by a concurrent tick are untouched; their
// terminal state is whichever transition commits first.
func (s *Scheduler) Cancel(eventID uint) error {
	n, err := s.followups.CancelByEvent(eventID)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.FollowupTransitions.WithLabelValues("cancelled").Add(float64(n))
		s.log.Info("Cancelled pending follow-ups", "event_id", eventID, "count", n)
	}
	return nil
}

// CompleteEvent marks the event done and drops its pending reminders.
func (s *Scheduler) CompleteEvent(eventID uint) error {
	if err := s.events.MarkCompleted(eventID); err != nil {
		return err
	}
	return s.Cancel(eventID)
}

// Tick processes one scheduling pass: sweep expired state, then claim
// and dispatch every due row. Each row is claimed with an atomic
// status-conditional update before dispatch, so overlapping ticks never
// double-send. A delivery failure marks its own row failed and never
// blocks the rest of the batch.
//
// The sweep covers three kinds of expiry. Pending rows past the grace
// period are cancelled rather than sent days late. Rows stuck in sending
// past the sending timeout were stranded by a crash and are marked
// failed. Open events whose date passed the grace period without the
// user reporting on them are closed, so reminders for them stop
// accumulating and the open-events view stays truthful.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	started := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	stale, err := s.followups.CancelStale(now.Add(-s.cfg.GracePeriod))
	if err != nil {
		s.log.LogError(err, "Failed to cancel stale follow-ups")
	} else if stale > 0 {
		metrics.FollowupTransitions.WithLabelValues("cancelled").Add(float64(stale))
		s.log.Info("Cancelled stale follow-ups", "count", stale)
	}

	stuck, err := s.followups.FailStuck(now.Add(-s.cfg.SendingTimeout))
	if err != nil {
		s.log.LogError(err, "Failed to expire stuck follow-ups")
	} else if stuck > 0 {
		metrics.FollowupTransitions.WithLabelValues("failed").Add(float64(stuck))
		s.log.Warn("Marked stuck follow-ups failed", "count", stuck)
	}

	done, err := s.events.CompletePastDue(now.Add(-s.cfg.GracePeriod))
	if err != nil {
		s.log.LogError(err, "Failed to complete past events")
	} else if done > 0 {
		s.log.Info("Completed past events", "count", done)
	}

	due, err := s.followups.DueBefore(now, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		s.dispatch(ctx, &due[i], now)
	}
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, f *models.ScheduledFollowup, now time.Time) {
	claimed, err := s.followups.Claim(f.ID, now)
	if err != nil {
		s.log.LogError(err, "Failed to claim follow-up", "followup_id", f.ID)
		return
	}
	if !claimed {
		// Another tick or a cancel got there first.
		return
	}

	user, err := s.users.GetByID(f.UserID)
	if err != nil {
		s.fail(f.ID, now, "user lookup failed: "+err.Error())
		return
	}

	sendErr := s.breaker.Execute(func() error {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
		defer cancel()
		return s.delivery.Send(sendCtx, user.ExternalID, f.Content)
	})
	if sendErr != nil {
		s.fail(f.ID, now, sendErr.Error())
		return
	}

	if err := s.followups.MarkSent(f.ID, now); err != nil {
		s.log.LogError(err, "Failed to mark follow-up sent", "followup_id", f.ID)
		return
	}
	metrics.FollowupTransitions.WithLabelValues("sent").Inc()
	s.log.Info("Follow-up delivered",
		"followup_id", f.ID,
		"user_id", f.UserID,
		"offset", string(f.Offset),
	)
}

// DeliverUrgent pushes text to a user immediately, retrying on failure
// instead of recording a failed row. Crisis replies go through here: they
// bypass the circuit breaker, because a breaker that is open for routine
// reminders must not suppress a crisis response.
func (s *Scheduler) DeliverUrgent(ctx context.Context, externalUserID, text string) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
		lastErr = s.delivery.Send(sendCtx, externalUserID, text)
		cancel()
		if lastErr == nil {
			return nil
		}
		s.log.LogError(lastErr, "Urgent delivery attempt failed",
			"user", externalUserID, "attempt", attempt+1)
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	return lastErr
}

func (s *Scheduler) fail(id uint, now time.Time, cause string) {
	if err := s.followups.MarkFailed(id, now, cause); err != nil {
		s.log.LogError(err, "Failed to mark follow-up failed", "followup_id", id)
		return
	}
	metrics.FollowupTransitions.WithLabelValues("failed").Inc()
	s.log.Warn("Follow-up delivery failed", "followup_id", id, "cause", cause)
}

// Start runs the tick loop until the context is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	s.log.Info("Scheduler started", "interval", s.cfg.TickInterval.String())

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Scheduler stopped")
				return
			case <-s.stopped:
				s.log.Info("Scheduler stopped")
				return
			case now := <-ticker.C:
				if err := s.Tick(ctx, now); err != nil {
					s.log.LogError(err, "Scheduler tick failed")
				}
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopped) })
}
