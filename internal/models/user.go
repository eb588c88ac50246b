package models

import (
	"time"
)

// User represents one conversation participant, keyed by the external
// identifier the transport hands us (phone number or username).
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ExternalID   string    `json:"external_id" gorm:"uniqueIndex;size:255;not null"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	MessageCount int       `json:"message_count" gorm:"not null;default:0"`
	IsFlagged    bool      `json:"is_flagged" gorm:"not null;default:false"`
}
