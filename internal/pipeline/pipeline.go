package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"companion-bot/backend/ai"
	"companion-bot/backend/internal/events"
	"companion-bot/backend/internal/memory"
	"companion-bot/backend/internal/models"
	"companion-bot/backend/internal/routing"
	"companion-bot/backend/internal/safety"
	"companion-bot/backend/internal/scheduler"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/internal/style"
	"companion-bot/backend/pkg/logger"
	"companion-bot/backend/pkg/metrics"
)

// Result is the outcome of processing one inbound message.
type Result struct {
	ReplyText      string  `json:"reply_text"`
	CapabilityUsed string  `json:"capability_used,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Crisis         bool    `json:"crisis"`
	CrisisCategory string  `json:"crisis_category,omitempty"`
	Limited        bool    `json:"limited"`
	EventsTracked  int     `json:"events_tracked"`
}

const (
	genericFallbackReply = "I'm here with you. I had trouble putting together a proper response just now, " +
		"but I'm listening. Could you tell me a bit more about what's on your mind?"

	limitedReply = "You've sent quite a few messages this hour, so I need to pause our conversation " +
		"for a little while. I'll be right here when the hour turns over."

	welcomePrefix = "Welcome! I'm your companion for check-ins and support. " +
		"Everything you share stays between us.\n\n"
)

// completionRe matches phrases that indicate a previously tracked event
// has happened.
var completionSignals = []string{
	"went well", "went fine", "went okay", "went great", "went badly",
	"passed my", "passed the", "failed my", "failed the",
	"finished my", "finished the", "it's over", "it is over",
	"i did it", "is done", "was yesterday", "already happened",
}

// Pipeline wires the per-message control flow: safety gate first, then
// rate limiting, then routing and event extraction in parallel, then
// response generation and style adaptation.
type Pipeline struct {
	store     *store.Store
	gate      *safety.Gate
	responder *safety.Responder
	router    *routing.Router
	extractor *events.Extractor
	scheduler *scheduler.Scheduler
	learner   *style.Learner
	memory    *memory.Memory
	registry  *ai.Registry
	log       *logger.Logger

	// userLocks serializes processing per user so concurrent messages
	// from one user cannot interleave profile or window updates.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func New(
	st *store.Store,
	gate *safety.Gate,
	responder *safety.Responder,
	router *routing.Router,
	extractor *events.Extractor,
	sched *scheduler.Scheduler,
	learner *style.Learner,
	mem *memory.Memory,
	registry *ai.Registry,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		store:     st,
		gate:      gate,
		responder: responder,
		router:    router,
		extractor: extractor,
		scheduler: sched,
		learner:   learner,
		memory:    mem,
		registry:  registry,
		log:       log.WithComponent("pipeline"),
		userLocks: make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) lockFor(externalID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.userLocks[externalID]
	if !ok {
		l = &sync.Mutex{}
		p.userLocks[externalID] = l
	}
	return l
}

// ProcessInbound is the single synchronous entry point per inbound
// message. The safety gate runs before the rate window: a crisis message
// is answered even when the user is over the hourly ceiling, and a
// crisis turn does not consume a rate slot.
func (p *Pipeline) ProcessInbound(ctx context.Context, externalUserID, text string, now time.Time) (*Result, error) {
	lock := p.lockFor(externalUserID)
	lock.Lock()
	defer lock.Unlock()

	user, created, err := p.store.Users.GetOrCreate(externalUserID, now)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("error").Inc()
		return nil, err
	}
	log := p.log.WithUserID(externalUserID)

	if signal := p.gate.Evaluate(text); signal != nil {
		return p.handleCrisis(ctx, user, text, signal, now, log)
	}

	allowed, _, err := p.memory.CheckAndIncrement(ctx, user.ID, now)
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("error").Inc()
		return nil, err
	}
	if !allowed {
		// Limited turns are not persisted: they never happened as far
		// as history and style learning are concerned.
		metrics.MessagesProcessed.WithLabelValues("limited").Inc()
		log.Warn("Message rate limited")
		return &Result{ReplyText: limitedReply, Limited: true}, nil
	}

	p.completeMentionedEvents(user.ID, text, now, log)

	var decision *routing.Decision
	var extracted []events.Extracted
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		decision = p.router.Route(gctx, text)
		return nil
	})
	g.Go(func() error {
		extracted = p.extractor.Extract(text, now)
		return nil
	})
	_ = g.Wait()

	history, err := p.memory.History(user.ID, 0)
	if err != nil {
		log.LogError(err, "Failed to load history, continuing without context")
		history = nil
	}

	if err := p.store.Messages.Create(&models.Message{
		UserID:    user.ID,
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
	}); err != nil {
		metrics.MessagesProcessed.WithLabelValues("error").Inc()
		return nil, err
	}

	reply := p.generate(decision.Capability, text, history, log)

	if err := p.learner.Observe(user.ID, text); err != nil {
		log.LogError(err, "Style observation failed")
	}
	adapted, err := p.learner.Adapt(user.ID, reply)
	if err != nil {
		log.LogError(err, "Style adaptation failed, using draft")
		adapted = reply
	}

	tracked := p.trackEvents(user.ID, extracted, now, log)
	if tracked > 0 {
		adapted += "\n\n" + eventNote(extracted)
	}
	if created {
		adapted = welcomePrefix + adapted
	}

	if err := p.store.Messages.Create(&models.Message{
		UserID:     user.ID,
		Role:       models.RoleAssistant,
		Content:    adapted,
		Capability: decision.Capability,
		Timestamp:  now,
	}); err != nil {
		log.LogError(err, "Failed to persist assistant turn")
	}
	if err := p.store.Users.IncrementMessageCount(user.ID); err != nil {
		log.LogError(err, "Failed to increment message count")
	}

	metrics.MessagesProcessed.WithLabelValues("ok").Inc()
	return &Result{
		ReplyText:      adapted,
		CapabilityUsed: decision.Capability,
		Confidence:     decision.Confidence,
		EventsTracked:  tracked,
	}, nil
}

// handleCrisis short-circuits the pipeline. The incident is persisted
// before anything else: a detection must never be lost, even if every
// later step fails.
func (p *Pipeline) handleCrisis(ctx context.Context, user *models.User, text string, signal *safety.CrisisSignal, now time.Time, log *logger.Logger) (*Result, error) {
	userMsg := &models.Message{
		UserID:    user.ID,
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: now,
	}
	if err := p.store.Messages.Create(userMsg); err != nil {
		log.LogError(err, "Failed to persist crisis message")
	}

	incident := &models.CrisisIncident{
		UserID:         user.ID,
		MessageID:      userMsg.ID,
		Category:       signal.Category,
		Severity:       signal.Severity,
		MatchedSignals: strings.Join(signal.Matched, "; "),
		ActionTaken:    "crisis_response_sent",
		Timestamp:      now,
	}
	if err := p.store.Incidents.Create(incident); err != nil {
		// Persisting the incident failed but the user still gets the
		// crisis reply. Log at the highest level we have.
		log.LogError(err, "FAILED TO PERSIST CRISIS INCIDENT",
			"category", string(signal.Category))
	}
	if err := p.store.Users.Flag(user.ID); err != nil {
		log.LogError(err, "Failed to flag user")
	}

	reply := p.responder.Respond(signal)
	if err := p.store.Messages.Create(&models.Message{
		UserID:    user.ID,
		Role:      models.RoleAssistant,
		Content:   reply,
		Timestamp: now,
	}); err != nil {
		log.LogError(err, "Failed to persist crisis reply")
	}

	// The reply is also pushed out-of-band with retries. A crisis
	// response must reach the user even if the synchronous channel drops
	// it; at-least-once beats at-most-once here.
	if err := p.scheduler.DeliverUrgent(ctx, user.ExternalID, reply); err != nil {
		log.LogError(err, "CRISIS REPLY DELIVERY FAILED AFTER RETRIES",
			"category", string(signal.Category))
	}

	metrics.MessagesProcessed.WithLabelValues("crisis").Inc()
	metrics.CrisisIncidents.WithLabelValues(string(signal.Category), string(signal.Severity)).Inc()
	log.Warn("Crisis handled",
		"category", string(signal.Category),
		"severity", string(signal.Severity),
	)

	return &Result{
		ReplyText:      reply,
		Crisis:         true,
		CrisisCategory: string(signal.Category),
	}, nil
}

// generate runs the routed capability, degrading to a generic safe reply
// on any failure. The user never sees a raw error.
func (p *Pipeline) generate(capabilityName, text string, history []ai.Turn, log *logger.Logger) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Capability panicked", "capability", capabilityName, "panic", fmt.Sprint(r))
			reply = genericFallbackReply
		}
	}()

	capability, ok := p.registry.Get(capabilityName)
	if !ok {
		log.Error("Routed to unregistered capability", "capability", capabilityName)
		return genericFallbackReply
	}
	reply, err := capability.Generate(text, history)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.LogError(err, "Capability generation failed", "capability", capabilityName)
		return genericFallbackReply
	}
	return reply
}

// trackEvents persists extracted events and enqueues their follow-up
// pairs. Returns how many events were stored.
func (p *Pipeline) trackEvents(userID uint, extracted []events.Extracted, now time.Time, log *logger.Logger) int {
	tracked := 0
	for _, ev := range extracted {
		record := &models.TrackedEvent{
			UserID:      userID,
			Type:        ev.Type,
			Description: ev.Description,
			EventDate:   ev.Date,
			CreatedAt:   now,
		}
		if err := p.store.Events.Create(record); err != nil {
			log.LogError(err, "Failed to persist event", "type", string(ev.Type))
			continue
		}
		if err := p.scheduler.EnqueueForEvent(record, now); err != nil {
			log.LogError(err, "Failed to enqueue follow-ups", "event_id", record.ID)
		}
		tracked++
	}
	return tracked
}

// completeMentionedEvents closes open events the user reports as done.
// Only events whose date has already passed qualify, so "my test went
// well" cannot cancel next week's reminder by accident.
func (p *Pipeline) completeMentionedEvents(userID uint, text string, now time.Time, log *logger.Logger) {
	lower := strings.ToLower(text)
	matched := false
	for _, s := range completionSignals {
		if strings.Contains(lower, s) {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	open, err := p.store.Events.ListOpen(userID)
	if err != nil {
		log.LogError(err, "Failed to list open events")
		return
	}
	for i := range open {
		if open[i].EventDate.After(now) {
			continue
		}
		if err := p.scheduler.CompleteEvent(open[i].ID); err != nil {
			log.LogError(err, "Failed to complete event", "event_id", open[i].ID)
			continue
		}
		log.Info("Event completed from conversation",
			"event_id", open[i].ID,
			"type", string(open[i].Type),
		)
	}
}

func eventNote(extracted []events.Extracted) string {
	if len(extracted) == 1 {
		return fmt.Sprintf("By the way, I noted your %s on %s. I'll check in with you around then.",
			extracted[0].Type, extracted[0].Date.Format("Monday, January 2"))
	}
	return fmt.Sprintf("By the way, I noted %d upcoming events you mentioned. I'll check in with you around them.",
		len(extracted))
}

// TestRouting exposes the routing decision for a message without
// processing it. Observability surface only.
func (p *Pipeline) TestRouting(ctx context.Context, text string) *routing.Decision {
	return p.router.Route(ctx, text)
}

// ResolveIncident flips the resolved flag on a crisis incident. That
// flag is the only mutable part of an incident record; everything else
// stays as detected.
func (p *Pipeline) ResolveIncident(id uint) error {
	return p.store.Incidents.Resolve(id)
}

// Stats summarizes a user's state for the read-only query surface.
type Stats struct {
	ExternalID       string                `json:"external_id"`
	MessageCount     int                   `json:"message_count"`
	MessagesLastHour int64                 `json:"messages_last_hour"`
	IsFlagged        bool                  `json:"is_flagged"`
	OpenEvents       []models.TrackedEvent `json:"open_events"`
	IncidentCount    int                   `json:"incident_count"`
	StyleSamples     int                   `json:"style_samples"`
	LastActive       time.Time             `json:"last_active"`
}

func (p *Pipeline) Stats(externalUserID string, now time.Time) (*Stats, error) {
	user, err := p.store.Users.GetByExternalID(externalUserID)
	if err != nil {
		return nil, err
	}
	open, err := p.store.Events.ListOpen(user.ID)
	if err != nil {
		return nil, err
	}
	incidents, err := p.store.Incidents.ListByUser(user.ID)
	if err != nil {
		return nil, err
	}
	lastHour, err := p.store.Messages.CountSince(user.ID, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	samples := 0
	if profile, err := p.store.Styles.Get(user.ID); err == nil && profile != nil {
		samples = profile.SampleCount
	}
	return &Stats{
		ExternalID:       user.ExternalID,
		MessageCount:     user.MessageCount,
		MessagesLastHour: lastHour,
		IsFlagged:        user.IsFlagged,
		OpenEvents:       open,
		IncidentCount:    len(incidents),
		StyleSamples:     samples,
		LastActive:       user.LastActive,
	}, nil
}

// History exposes a user's recent turns for the query surface.
func (p *Pipeline) History(externalUserID string, limit int) ([]models.Message, error) {
	user, err := p.store.Users.GetByExternalID(externalUserID)
	if err != nil {
		return nil, err
	}
	return p.memory.RawHistory(user.ID, limit)
}
