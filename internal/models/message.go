package models

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one immutable conversation turn. Capability is empty for
// user turns and holds the responder id for assistant turns.
type Message struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ExternalID string    `json:"external_id" gorm:"index"`
	UserID     uint      `json:"user_id" gorm:"index;not null"`
	Role       string    `json:"role" gorm:"size:20;not null"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	Capability string    `json:"capability,omitempty" gorm:"size:50"`
	Timestamp  time.Time `json:"timestamp" gorm:"index;not null"`
	CreatedAt  time.Time `json:"created_at"`
}
