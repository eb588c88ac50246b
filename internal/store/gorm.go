package store

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"companion-bot/backend/internal/models"
	apperrors "companion-bot/backend/pkg/errors"
)

// NewGormStore wires every repository against a single gorm handle.
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Users:     &gormUsers{db: db},
		Messages:  &gormMessages{db: db},
		Incidents: &gormIncidents{db: db},
		Events:    &gormEvents{db: db},
		Followups: &gormFollowups{db: db},
		Styles:    &gormStyles{db: db},
		Rates:     &gormRates{db: db},
	}
}

type gormUsers struct {
	db *gorm.DB
}

func (s *gormUsers) GetOrCreate(externalID string, now time.Time) (*models.User, bool, error) {
	var user models.User
	err := s.db.Where("external_id = ?", externalID).First(&user).Error
	if err == nil {
		if updErr := s.db.Model(&user).Update("last_active", now).Error; updErr != nil {
			return nil, false, apperrors.Wrap(updErr, "Failed to update user")
		}
		user.LastActive = now
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperrors.Wrap(err, "Failed to load user")
	}

	user = models.User{
		ExternalID: externalID,
		CreatedAt:  now,
		LastActive: now,
	}
	if err := s.db.Create(&user).Error; err != nil {
		// Concurrent first-contact: the other writer won, read its row.
		var existing models.User
		if retryErr := s.db.Where("external_id = ?", externalID).First(&existing).Error; retryErr == nil {
			return &existing, false, nil
		}
		return nil, false, apperrors.Wrap(err, "Failed to create user")
	}
	return &user, true, nil
}

func (s *gormUsers) GetByExternalID(externalID string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("external_id = ?", externalID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WrapNotFound(err, "User not found")
		}
		return nil, apperrors.Wrap(err, "Failed to load user")
	}
	return &user, nil
}

func (s *gormUsers) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WrapNotFound(err, "User not found")
		}
		return nil, apperrors.Wrap(err, "Failed to load user")
	}
	return &user, nil
}

func (s *gormUsers) IncrementMessageCount(userID uint) error {
	err := s.db.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("message_count", gorm.Expr("message_count + 1")).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to increment message count")
	}
	return nil
}

func (s *gormUsers) Flag(userID uint) error {
	err := s.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_flagged", true).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to flag user")
	}
	return nil
}

type gormMessages struct {
	db *gorm.DB
}

func (s *gormMessages) Create(msg *models.Message) error {
	if msg.ExternalID == "" {
		msg.ExternalID = uuid.NewString()
	}
	if err := s.db.Create(msg).Error; err != nil {
		return apperrors.Wrap(err, "Failed to persist message")
	}
	return nil
}

func (s *gormMessages) Recent(userID uint, limit int) ([]models.Message, error) {
	// Fetch newest-first with the limit, then reverse into chronological
	// order so callers see oldest-first.
	var messages []models.Message
	err := s.db.Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load messages")
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *gormMessages) CountSince(userID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.Message{}).
		Where("user_id = ? AND role = ? AND timestamp >= ?", userID, models.RoleUser, since).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "Failed to count messages")
	}
	return count, nil
}

type gormIncidents struct {
	db *gorm.DB
}

func (s *gormIncidents) Create(incident *models.CrisisIncident) error {
	if err := s.db.Create(incident).Error; err != nil {
		return apperrors.Wrap(err, "Failed to persist crisis incident")
	}
	return nil
}

func (s *gormIncidents) ListByUser(userID uint) ([]models.CrisisIncident, error) {
	var incidents []models.CrisisIncident
	err := s.db.Where("user_id = ?", userID).
		Order("timestamp DESC").
		Find(&incidents).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load incidents")
	}
	return incidents, nil
}

func (s *gormIncidents) Resolve(id uint) error {
	res := s.db.Model(&models.CrisisIncident{}).
		Where("id = ?", id).
		Update("resolved", true)
	if res.Error != nil {
		return apperrors.Wrap(res.Error, "Failed to resolve incident")
	}
	if res.RowsAffected == 0 {
		return apperrors.WrapNotFound(nil, "Incident not found")
	}
	return nil
}

type gormEvents struct {
	db *gorm.DB
}

func (s *gormEvents) Create(event *models.TrackedEvent) error {
	if err := s.db.Create(event).Error; err != nil {
		return apperrors.Wrap(err, "Failed to persist event")
	}
	return nil
}

func (s *gormEvents) ListOpen(userID uint) ([]models.TrackedEvent, error) {
	var events []models.TrackedEvent
	err := s.db.Where("user_id = ? AND completed = ?", userID, false).
		Order("event_date ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load events")
	}
	return events, nil
}

func (s *gormEvents) MarkCompleted(id uint) error {
	err := s.db.Model(&models.TrackedEvent{}).
		Where("id = ?", id).
		Update("completed", true).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to complete event")
	}
	return nil
}

func (s *gormEvents) CompletePastDue(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.TrackedEvent{}).
		Where("completed = ? AND event_date < ?", false, cutoff).
		Update("completed", true)
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, "Failed to complete past events")
	}
	return res.RowsAffected, nil
}

type gormFollowups struct {
	db *gorm.DB
}

func (s *gormFollowups) Enqueue(f *models.ScheduledFollowup) (bool, error) {
	created := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.ScheduledFollowup{}).
			Where("event_id = ? AND \"offset\" = ? AND status = ?",
				f.EventID, f.Offset, models.FollowupPending).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(f).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		// The partial unique index backstops races between instances.
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "Failed to enqueue follow-up")
	}
	return created, nil
}

func (s *gormFollowups) DueBefore(now time.Time, limit int) ([]models.ScheduledFollowup, error) {
	var due []models.ScheduledFollowup
	err := s.db.Where("status = ? AND send_at <= ?", models.FollowupPending, now).
		Order("send_at ASC").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "Failed to load due follow-ups")
	}
	return due, nil
}

func (s *gormFollowups) Claim(id uint, now time.Time) (bool, error) {
	res := s.db.Model(&models.ScheduledFollowup{}).
		Where("id = ? AND status = ?", id, models.FollowupPending).
		Updates(map[string]interface{}{
			"status":       models.FollowupSending,
			"attempted_at": now,
		})
	if res.Error != nil {
		return false, apperrors.Wrap(res.Error, "Failed to claim follow-up")
	}
	return res.RowsAffected == 1, nil
}

func (s *gormFollowups) MarkSent(id uint, at time.Time) error {
	err := s.db.Model(&models.ScheduledFollowup{}).
		Where("id = ? AND status = ?", id, models.FollowupSending).
		Updates(map[string]interface{}{
			"status":       models.FollowupSent,
			"attempted_at": at,
		}).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to mark follow-up sent")
	}
	return nil
}

func (s *gormFollowups) MarkFailed(id uint, at time.Time, cause string) error {
	err := s.db.Model(&models.ScheduledFollowup{}).
		Where("id = ? AND status = ?", id, models.FollowupSending).
		Updates(map[string]interface{}{
			"status":       models.FollowupFailed,
			"attempted_at": at,
			"last_error":   cause,
		}).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to mark follow-up failed")
	}
	return nil
}

func (s *gormFollowups) CancelByEvent(eventID uint) (int64, error) {
	res := s.db.Model(&models.ScheduledFollowup{}).
		Where("event_id = ? AND status = ?", eventID, models.FollowupPending).
		Update("status", models.FollowupCancelled)
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, "Failed to cancel follow-ups")
	}
	return res.RowsAffected, nil
}

func (s *gormFollowups) CancelStale(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.ScheduledFollowup{}).
		Where("status = ? AND send_at < ?", models.FollowupPending, cutoff).
		Update("status", models.FollowupCancelled)
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, "Failed to cancel stale follow-ups")
	}
	return res.RowsAffected, nil
}

func (s *gormFollowups) FailStuck(cutoff time.Time) (int64, error) {
	res := s.db.Model(&models.ScheduledFollowup{}).
		Where("status = ? AND attempted_at < ?", models.FollowupSending, cutoff).
		Updates(map[string]interface{}{
			"status":     models.FollowupFailed,
			"last_error": "delivery interrupted",
		})
	if res.Error != nil {
		return 0, apperrors.Wrap(res.Error, "Failed to expire stuck follow-ups")
	}
	return res.RowsAffected, nil
}

func (s *gormFollowups) CountPending(eventID uint, offset models.FollowupOffset) (int64, error) {
	var count int64
	err := s.db.Model(&models.ScheduledFollowup{}).
		Where("event_id = ? AND \"offset\" = ? AND status = ?",
			eventID, offset, models.FollowupPending).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(err, "Failed to count follow-ups")
	}
	return count, nil
}

type gormStyles struct {
	db *gorm.DB
}

func (s *gormStyles) Get(userID uint) (*models.StyleProfile, error) {
	var profile models.StyleProfile
	if err := s.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "Failed to load style profile")
	}
	return &profile, nil
}

func (s *gormStyles) Upsert(profile *models.StyleProfile) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"avg_length", "emoji_ratio", "formality",
			"greeting_hi", "greeting_hey", "greeting_hello",
			"sample_count", "updated_at",
		}),
	}).Create(profile).Error
	if err != nil {
		return apperrors.Wrap(err, "Failed to upsert style profile")
	}
	return nil
}

type gormRates struct {
	db *gorm.DB
}

func (s *gormRates) CheckAndIncrement(userID uint, now time.Time, window time.Duration, ceiling int) (bool, int, error) {
	allowed := false
	remaining := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rw models.RateWindow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&rw).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rw = models.RateWindow{UserID: userID, Count: 1, WindowStart: now}
			if err := tx.Create(&rw).Error; err != nil {
				return err
			}
			allowed = true
			remaining = ceiling - 1
			return nil
		}
		if err != nil {
			return err
		}

		if now.Sub(rw.WindowStart) >= window {
			rw.Count = 0
			rw.WindowStart = now
		}
		if rw.Count >= ceiling {
			allowed = false
			remaining = 0
			// Persist a window reset even on rejection.
			return tx.Model(&rw).Updates(map[string]interface{}{
				"count":        rw.Count,
				"window_start": rw.WindowStart,
			}).Error
		}
		rw.Count++
		allowed = true
		remaining = ceiling - rw.Count
		return tx.Model(&rw).Updates(map[string]interface{}{
			"count":        rw.Count,
			"window_start": rw.WindowStart,
		}).Error
	})
	if err != nil {
		return false, 0, apperrors.Wrap(err, "Failed to check rate window")
	}
	return allowed, remaining, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}
