package models

import (
	"time"
)

// EventType is the closed set of tracked event categories.
type EventType string

const (
	EventTest         EventType = "test"
	EventAppointment  EventType = "appointment"
	EventDeadline     EventType = "deadline"
	EventInterview    EventType = "interview"
	EventPresentation EventType = "presentation"
	EventOther        EventType = "other"
)

// TrackedEvent is a dated real-world event extracted from a user message.
// Completed flips when a later message reports the outcome or when the
// event date has fully passed.
type TrackedEvent struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      uint      `json:"user_id" gorm:"index;not null"`
	Type        EventType `json:"type" gorm:"size:50;not null"`
	Description string    `json:"description" gorm:"type:text;not null"`
	EventDate   time.Time `json:"event_date" gorm:"index;not null"`
	Completed   bool      `json:"completed" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
}

// Follow-up offsets relative to the owning event. The (EventID, Offset)
// pair has at most one pending row, enforced by a partial unique index.
type FollowupOffset string

const (
	OffsetBefore FollowupOffset = "before"
	OffsetAfter  FollowupOffset = "after"
)

// ScheduledFollowup states. Only the scheduler transitions status.
type FollowupStatus string

const (
	FollowupPending   FollowupStatus = "pending"
	FollowupSending   FollowupStatus = "sending"
	FollowupSent      FollowupStatus = "sent"
	FollowupCancelled FollowupStatus = "cancelled"
	FollowupFailed    FollowupStatus = "failed"
)

// ScheduledFollowup is a deferred outbound message bound to a TrackedEvent.
type ScheduledFollowup struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	UserID      uint           `json:"user_id" gorm:"index;not null"`
	EventID     uint           `json:"event_id" gorm:"index;not null"`
	Offset      FollowupOffset `json:"offset" gorm:"size:10;not null"`
	Content     string         `json:"content" gorm:"type:text;not null"`
	SendAt      time.Time      `json:"send_at" gorm:"index;not null"`
	Status      FollowupStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	AttemptedAt *time.Time     `json:"attempted_at,omitempty"`
	LastError   string         `json:"last_error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
}
