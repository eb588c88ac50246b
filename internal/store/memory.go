package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"companion-bot/backend/internal/models"
	apperrors "companion-bot/backend/pkg/errors"
)

// NewMemoryStore returns a fully in-process store. Used by tests and by
// demo mode when no database is configured.
func NewMemoryStore() *Store {
	m := &memoryBackend{
		usersByExternal: make(map[string]*models.User),
		styles:          make(map[uint]*models.StyleProfile),
		windows:         make(map[uint]*models.RateWindow),
	}
	return &Store{
		Users:     &memUsers{m},
		Messages:  &memMessages{m},
		Incidents: &memIncidents{m},
		Events:    &memEvents{m},
		Followups: &memFollowups{m},
		Styles:    &memStyles{m},
		Rates:     &memRates{m},
	}
}

type memoryBackend struct {
	mu sync.Mutex

	nextID          uint
	usersByExternal map[string]*models.User
	messages        []models.Message
	incidents       []models.CrisisIncident
	events          []models.TrackedEvent
	followups       []models.ScheduledFollowup
	styles          map[uint]*models.StyleProfile
	windows         map[uint]*models.RateWindow
}

// id allocates the next identifier. Callers hold mu.
func (m *memoryBackend) id() uint {
	m.nextID++
	return m.nextID
}

type memUsers struct{ m *memoryBackend }

func (s *memUsers) GetOrCreate(externalID string, now time.Time) (*models.User, bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if u, ok := s.m.usersByExternal[externalID]; ok {
		u.LastActive = now
		cp := *u
		return &cp, false, nil
	}
	u := &models.User{
		ID:         s.m.id(),
		ExternalID: externalID,
		CreatedAt:  now,
		LastActive: now,
	}
	s.m.usersByExternal[externalID] = u
	cp := *u
	return &cp, true, nil
}

func (s *memUsers) GetByExternalID(externalID string) (*models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if u, ok := s.m.usersByExternal[externalID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, apperrors.WrapNotFound(nil, "User not found")
}

func (s *memUsers) GetByID(id uint) (*models.User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.usersByExternal {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.WrapNotFound(nil, "User not found")
}

func (s *memUsers) IncrementMessageCount(userID uint) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.usersByExternal {
		if u.ID == userID {
			u.MessageCount++
			break
		}
	}
	return nil
}

func (s *memUsers) Flag(userID uint) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, u := range s.m.usersByExternal {
		if u.ID == userID {
			u.IsFlagged = true
			break
		}
	}
	return nil
}

type memMessages struct{ m *memoryBackend }

func (s *memMessages) Create(msg *models.Message) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	msg.ID = s.m.id()
	if msg.ExternalID == "" {
		msg.ExternalID = uuid.NewString()
	}
	s.m.messages = append(s.m.messages, *msg)
	return nil
}

func (s *memMessages) Recent(userID uint, limit int) ([]models.Message, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var all []models.Message
	for _, msg := range s.m.messages {
		if msg.UserID == userID {
			all = append(all, msg)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *memMessages) CountSince(userID uint, since time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var count int64
	for _, msg := range s.m.messages {
		if msg.UserID == userID && msg.Role == models.RoleUser && !msg.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

type memIncidents struct{ m *memoryBackend }

func (s *memIncidents) Create(incident *models.CrisisIncident) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	incident.ID = s.m.id()
	s.m.incidents = append(s.m.incidents, *incident)
	return nil
}

func (s *memIncidents) ListByUser(userID uint) ([]models.CrisisIncident, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.CrisisIncident
	for _, inc := range s.m.incidents {
		if inc.UserID == userID {
			out = append(out, inc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

func (s *memIncidents) Resolve(id uint) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.incidents {
		if s.m.incidents[i].ID == id {
			s.m.incidents[i].Resolved = true
			return nil
		}
	}
	return apperrors.WrapNotFound(nil, "Incident not found")
}

type memEvents struct{ m *memoryBackend }

func (s *memEvents) Create(event *models.TrackedEvent) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	event.ID = s.m.id()
	s.m.events = append(s.m.events, *event)
	return nil
}

func (s *memEvents) ListOpen(userID uint) ([]models.TrackedEvent, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []models.TrackedEvent
	for _, ev := range s.m.events {
		if ev.UserID == userID && !ev.Completed {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EventDate.Before(out[j].EventDate)
	})
	return out, nil
}

func (s *memEvents) MarkCompleted(id uint) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.events {
		if s.m.events[i].ID == id {
			s.m.events[i].Completed = true
		}
	}
	return nil
}

func (s *memEvents) CompletePastDue(cutoff time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for i := range s.m.events {
		if !s.m.events[i].Completed && s.m.events[i].EventDate.Before(cutoff) {
			s.m.events[i].Completed = true
			n++
		}
	}
	return n, nil
}

type memFollowups struct{ m *memoryBackend }

func (s *memFollowups) Enqueue(f *models.ScheduledFollowup) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, existing := range s.m.followups {
		if existing.EventID == f.EventID && existing.Offset == f.Offset &&
			existing.Status == models.FollowupPending {
			return false, nil
		}
	}
	f.ID = s.m.id()
	if f.Status == "" {
		f.Status = models.FollowupPending
	}
	s.m.followups = append(s.m.followups, *f)
	return true, nil
}

func (s *memFollowups) DueBefore(now time.Time, limit int) ([]models.ScheduledFollowup, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var due []models.ScheduledFollowup
	for _, f := range s.m.followups {
		if f.Status == models.FollowupPending && !f.SendAt.After(now) {
			due = append(due, f)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].SendAt.Before(due[j].SendAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *memFollowups) Claim(id uint, now time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.followups {
		if s.m.followups[i].ID == id && s.m.followups[i].Status == models.FollowupPending {
			s.m.followups[i].Status = models.FollowupSending
			at := now
			s.m.followups[i].AttemptedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *memFollowups) MarkSent(id uint, at time.Time) error {
	return s.transition(id, models.FollowupSending, models.FollowupSent, at, "")
}

func (s *memFollowups) MarkFailed(id uint, at time.Time, cause string) error {
	return s.transition(id, models.FollowupSending, models.FollowupFailed, at, cause)
}

func (s *memFollowups) transition(id uint, from, to models.FollowupStatus, at time.Time, cause string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for i := range s.m.followups {
		if s.m.followups[i].ID == id && s.m.followups[i].Status == from {
			s.m.followups[i].Status = to
			t := at
			s.m.followups[i].AttemptedAt = &t
			if cause != "" {
				s.m.followups[i].LastError = cause
			}
		}
	}
	return nil
}

func (s *memFollowups) CancelByEvent(eventID uint) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for i := range s.m.followups {
		if s.m.followups[i].EventID == eventID && s.m.followups[i].Status == models.FollowupPending {
			s.m.followups[i].Status = models.FollowupCancelled
			n++
		}
	}
	return n, nil
}

func (s *memFollowups) CancelStale(cutoff time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for i := range s.m.followups {
		if s.m.followups[i].Status == models.FollowupPending && s.m.followups[i].SendAt.Before(cutoff) {
			s.m.followups[i].Status = models.FollowupCancelled
			n++
		}
	}
	return n, nil
}

func (s *memFollowups) FailStuck(cutoff time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for i := range s.m.followups {
		f := &s.m.followups[i]
		if f.Status == models.FollowupSending && f.AttemptedAt != nil && f.AttemptedAt.Before(cutoff) {
			f.Status = models.FollowupFailed
			f.LastError = "delivery interrupted"
			n++
		}
	}
	return n, nil
}

func (s *memFollowups) CountPending(eventID uint, offset models.FollowupOffset) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for _, f := range s.m.followups {
		if f.EventID == eventID && f.Offset == offset && f.Status == models.FollowupPending {
			n++
		}
	}
	return n, nil
}

type memStyles struct{ m *memoryBackend }

func (s *memStyles) Get(userID uint) (*models.StyleProfile, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if p, ok := s.m.styles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (s *memStyles) Upsert(profile *models.StyleProfile) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if existing, ok := s.m.styles[profile.UserID]; ok {
		profile.ID = existing.ID
	} else if profile.ID == 0 {
		profile.ID = s.m.id()
	}
	cp := *profile
	s.m.styles[profile.UserID] = &cp
	return nil
}

type memRates struct{ m *memoryBackend }

func (s *memRates) CheckAndIncrement(userID uint, now time.Time, window time.Duration, ceiling int) (bool, int, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rw, ok := s.m.windows[userID]
	if !ok {
		s.m.windows[userID] = &models.RateWindow{UserID: userID, Count: 1, WindowStart: now}
		return true, ceiling - 1, nil
	}
	if now.Sub(rw.WindowStart) >= window {
		rw.Count = 0
		rw.WindowStart = now
	}
	if rw.Count >= ceiling {
		return false, 0, nil
	}
	rw.Count++
	return true, ceiling - rw.Count, nil
}
