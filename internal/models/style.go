package models

import (
	"time"
)

// Formality bands derived from the rolling formality score.
const (
	FormalityCasual  = "casual"
	FormalityNeutral = "neutral"
	FormalityFormal  = "formal"
)

// StyleProfile holds per-user rolling communication-style aggregates.
// Written only by the style learner, read by the adaptation step.
type StyleProfile struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	UserID        uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	AvgLength     float64   `json:"avg_length" gorm:"not null;default:0"`
	EmojiRatio    float64   `json:"emoji_ratio" gorm:"not null;default:0"`
	Formality     float64   `json:"formality" gorm:"not null;default:0"`
	GreetingHi    int       `json:"greeting_hi" gorm:"not null;default:0"`
	GreetingHey   int       `json:"greeting_hey" gorm:"not null;default:0"`
	GreetingHello int       `json:"greeting_hello" gorm:"not null;default:0"`
	SampleCount   int       `json:"sample_count" gorm:"not null;default:0"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FormalityBand maps the continuous formality score to a band. The score
// moves positive on formal markers and negative on casual ones.
func (p *StyleProfile) FormalityBand() string {
	switch {
	case p.Formality > 0.25:
		return FormalityFormal
	case p.Formality < -0.25:
		return FormalityCasual
	default:
		return FormalityNeutral
	}
}

// PreferredGreeting returns the greeting the user opens with most often.
func (p *StyleProfile) PreferredGreeting() string {
	best, n := "Hi", p.GreetingHi
	if p.GreetingHey > n {
		best, n = "Hey", p.GreetingHey
	}
	if p.GreetingHello > n {
		best = "Hello"
	}
	return best
}

// RateWindow tracks one user's message count in the current rolling hour.
type RateWindow struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      uint      `json:"user_id" gorm:"uniqueIndex;not null"`
	Count       int       `json:"count" gorm:"not null;default:0"`
	WindowStart time.Time `json:"window_start" gorm:"not null"`
}
