package store

import (
	"time"

	"companion-bot/backend/internal/models"
)

// UserStore manages user records.
type UserStore interface {
	GetOrCreate(externalID string, now time.Time) (user *models.User, created bool, err error)
	GetByExternalID(externalID string) (*models.User, error)
	GetByID(id uint) (*models.User, error)
	IncrementMessageCount(userID uint) error
	Flag(userID uint) error
}

// MessageStore persists conversation turns.
type MessageStore interface {
	Create(msg *models.Message) error
	// Recent returns at most limit messages in chronological order,
	// oldest first. This ordering is a hard contract: it feeds context
	// to the response capabilities.
	Recent(userID uint, limit int) ([]models.Message, error)
	CountSince(userID uint, since time.Time) (int64, error)
}

// IncidentStore persists crisis incidents.
type IncidentStore interface {
	Create(incident *models.CrisisIncident) error
	ListByUser(userID uint) ([]models.CrisisIncident, error)
	Resolve(id uint) error
}

// EventStore persists tracked events.
type EventStore interface {
	Create(event *models.TrackedEvent) error
	ListOpen(userID uint) ([]models.TrackedEvent, error)
	MarkCompleted(id uint) error
	// CompletePastDue marks open events whose date passed before the
	// cutoff as completed. Queued follow-ups are untouched; the after
	// check-in still goes out for a completed event.
	CompletePastDue(cutoff time.Time) (int64, error)
}

// FollowupStore persists scheduled follow-ups. Enqueue and Claim carry the
// scheduler's correctness guarantees and must be atomic in the backing
// store: multi-instance deployments rely on that, not on process locks.
type FollowupStore interface {
	// Enqueue inserts a pending row unless a pending row already exists
	// for the same (event, offset) pair. Returns false on that conflict;
	// a conflict is a no-op, not an error.
	Enqueue(f *models.ScheduledFollowup) (bool, error)
	// DueBefore returns pending rows whose send time is at or before now.
	DueBefore(now time.Time, limit int) ([]models.ScheduledFollowup, error)
	// Claim transitions one row pending→sending. Returns false when the
	// row was already claimed, cancelled or dispatched.
	Claim(id uint, now time.Time) (bool, error)
	MarkSent(id uint, at time.Time) error
	MarkFailed(id uint, at time.Time, cause string) error
	// CancelByEvent cancels all pending rows for an event. In-flight
	// (claimed) rows are left alone; their terminal state is whichever
	// transition commits first.
	CancelByEvent(eventID uint) (int64, error)
	// CancelStale cancels pending rows whose send time passed before the
	// cutoff without being dispatched.
	CancelStale(cutoff time.Time) (int64, error)
	// FailStuck marks sending rows whose last attempt predates the cutoff
	// as failed. Recovers rows stranded by a crash between the claim and
	// its terminal transition.
	FailStuck(cutoff time.Time) (int64, error)
	CountPending(eventID uint, offset models.FollowupOffset) (int64, error)
}

// StyleStore persists per-user style profiles.
type StyleStore interface {
	Get(userID uint) (*models.StyleProfile, error)
	Upsert(profile *models.StyleProfile) error
}

// RateStore implements the per-user rolling-hour window. The check and
// the increment are one atomic operation.
type RateStore interface {
	// CheckAndIncrement reports whether the user is under the ceiling
	// and, if so, consumes one slot. Expired windows are reset.
	CheckAndIncrement(userID uint, now time.Time, window time.Duration, ceiling int) (allowed bool, remaining int, err error)
}

// Store aggregates every persistence interface the pipeline consumes.
type Store struct {
	Users     UserStore
	Messages  MessageStore
	Incidents IncidentStore
	Events    EventStore
	Followups FollowupStore
	Styles    StyleStore
	Rates     RateStore
}
