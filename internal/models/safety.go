package models

import (
	"time"
)

// CrisisCategory is the closed set of acute-risk classifications.
type CrisisCategory string

const (
	CrisisSuicide      CrisisCategory = "suicide"
	CrisisSelfHarm     CrisisCategory = "self_harm"
	CrisisHarmToOthers CrisisCategory = "harm_to_others"
	CrisisAbuse        CrisisCategory = "abuse"
	CrisisSubstance    CrisisCategory = "substance"
	CrisisMedical      CrisisCategory = "medical"
)

// Severity levels for triage. Critical means immediate intervention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// CrisisIncident is the persisted audit record of a safety gate match.
// Immutable after creation except for Resolved, which a reviewer flips.
type CrisisIncident struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	UserID         uint           `json:"user_id" gorm:"index;not null"`
	MessageID      uint           `json:"message_id" gorm:"not null"`
	Category       CrisisCategory `json:"category" gorm:"size:50;not null"`
	Severity       Severity       `json:"severity" gorm:"size:20;not null"`
	MatchedSignals string         `json:"matched_signals" gorm:"type:text"`
	ActionTaken    string         `json:"action_taken" gorm:"type:text"`
	Resolved       bool           `json:"resolved" gorm:"not null;default:false"`
	Timestamp      time.Time      `json:"timestamp" gorm:"index;not null"`
}
