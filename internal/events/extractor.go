package events

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"companion-bot/backend/internal/models"
	"companion-bot/backend/pkg/logger"
	"companion-bot/backend/pkg/metrics"
)

// WeekdayPolicy decides what a bare weekday name means when the
// reference day is that same weekday.
type WeekdayPolicy int

const (
	// WeekdayNextWeek treats "friday" said on a Friday as next week's
	// Friday. The default: people rarely announce same-day events by name.
	WeekdayNextWeek WeekdayPolicy = iota
	// WeekdayToday treats it as today.
	WeekdayToday
)

// Extracted is one dated event pulled from a message, not yet persisted.
type Extracted struct {
	Type        models.EventType
	Description string
	Date        time.Time
	Importance  string
}

type typePatterns struct {
	eventType models.EventType
	patterns  []*regexp.Regexp
}

// Extractor finds event mentions co-occurring with temporal expressions
// and resolves them to absolute timestamps. Stateless and concurrency-safe.
type Extractor struct {
	policy WeekdayPolicy
	types  []typePatterns
	log    *logger.Logger
}

func NewExtractor(policy WeekdayPolicy, log *logger.Logger) *Extractor {
	return &Extractor{
		policy: policy,
		log:    log.WithComponent("events"),
		types: []typePatterns{
			{models.EventTest, compile(
				`\b(test|exam|quiz|midterm|final)\b`,
				`\b(testing|examination)\b`,
			)},
			{models.EventAppointment, compile(
				`\b(appointment|meeting|session)\b`,
				`\b(doctor|therapist|therapy|counseling)\b`,
				`\bsee (my )?(doctor|therapist)\b`,
			)},
			{models.EventDeadline, compile(
				`\b(deadline|due date|submit|turn in)\b`,
				`\b(project|assignment|paper) due\b`,
				`\b(need to finish|have to complete)\b`,
			)},
			{models.EventInterview, compile(
				`\b(interview|job interview)\b`,
			)},
			{models.EventPresentation, compile(
				`\b(presentation|present|presenting)\b`,
			)},
			{models.EventOther, compile(
				`\b(party|gathering|meetup)\b`,
				`\b(dinner|lunch) with\b`,
			)},
		},
	}
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

var (
	inNDaysRe      = regexp.MustCompile(`\bin (\d+) days?\b`)
	nDaysFromNowRe = regexp.MustCompile(`\b(\d+) days? from now\b`)
	weekdayRe      = regexp.MustCompile(`\b(this |next )?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

var weekdayIndex = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// Extract returns every event found in the text. An event mention with
// no resolvable temporal expression is dropped, never stored with a
// guessed date. Extraction never fails: garbage in, empty slice out.
func (e *Extractor) Extract(text string, referenceTime time.Time) []Extracted {
	lower := strings.ToLower(text)
	date, ok := e.resolveDate(lower, referenceTime)
	if !ok {
		return nil
	}

	var out []Extracted
	for _, tp := range e.types {
		for _, pattern := range tp.patterns {
			if !pattern.MatchString(lower) {
				continue
			}
			ev := Extracted{
				Type:        tp.eventType,
				Description: e.describe(text, tp.patterns),
				Date:        date,
				Importance:  inferImportance(tp.eventType, lower),
			}
			out = append(out, ev)
			metrics.EventsExtracted.Inc()
			e.log.Info("Event extracted",
				"type", string(ev.Type),
				"date", ev.Date.Format(time.RFC3339),
				"importance", ev.Importance,
			)
			break
		}
	}
	return out
}

// resolveDate turns the first temporal expression in the text into an
// absolute timestamp anchored at noon, which keeps "the morning before"
// and "the morning after" offsets unambiguous.
func (e *Extractor) resolveDate(lower string, now time.Time) (time.Time, bool) {
	if strings.Contains(lower, "today") {
		return atNoon(now), true
	}
	if strings.Contains(lower, "tomorrow") {
		return atNoon(now.AddDate(0, 0, 1)), true
	}
	if strings.Contains(lower, "this week") {
		// "this week" without a day reads as the coming Friday.
		days := (int(time.Friday) - int(now.Weekday()) + 7) % 7
		return atNoon(now.AddDate(0, 0, days)), true
	}
	if strings.Contains(lower, "next week") {
		// Monday of next week, i.e. the next strictly-future Monday.
		days := (int(time.Monday) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return atNoon(now.AddDate(0, 0, days)), true
	}

	if m := weekdayRe.FindStringSubmatch(lower); m != nil {
		target := weekdayIndex[m[2]]
		explicitNext := strings.TrimSpace(m[1]) == "next"
		days := (int(target) - int(now.Weekday()) + 7) % 7
		if days == 0 {
			if explicitNext || e.policy == WeekdayNextWeek {
				days = 7
			}
		} else if explicitNext {
			days += 7
		}
		return atNoon(now.AddDate(0, 0, days)), true
	}

	if m := inNDaysRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return atNoon(now.AddDate(0, 0, n)), true
		}
	}
	if m := nDaysFromNowRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return atNoon(now.AddDate(0, 0, n)), true
		}
	}
	return time.Time{}, false
}

func atNoon(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, t.Location())
}

// describe pulls the sentence that mentioned the event, capped at 100
// characters.
func (e *Extractor) describe(original string, patterns []*regexp.Regexp) string {
	for _, sentence := range strings.Split(original, ".") {
		lower := strings.ToLower(sentence)
		for _, pattern := range patterns {
			if pattern.MatchString(lower) {
				desc := strings.TrimSpace(sentence)
				if len(desc) > 100 {
					desc = desc[:100]
				}
				return desc
			}
		}
	}
	return strings.TrimSpace(original)
}

var highImportanceSignals = []string{
	"important", "crucial", "critical", "must", "have to",
	"really worried", "stressed about", "anxious about",
}

var lowImportanceSignals = []string{
	"maybe", "might", "possibly", "optional", "if i can",
}

func inferImportance(eventType models.EventType, lower string) string {
	for _, s := range highImportanceSignals {
		if strings.Contains(lower, s) {
			return "high"
		}
	}
	for _, s := range lowImportanceSignals {
		if strings.Contains(lower, s) {
			return "low"
		}
	}
	switch eventType {
	case models.EventTest, models.EventInterview, models.EventDeadline:
		return "high"
	case models.EventAppointment:
		return "medium"
	default:
		return "low"
	}
}
