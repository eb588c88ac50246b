package style

import (
	"regexp"
	"strings"
	"time"

	"companion-bot/backend/internal/models"
	"companion-bot/backend/internal/store"
	"companion-bot/backend/pkg/logger"
)

// Config tunes the style learner.
type Config struct {
	// WindowSize sets how many recent messages shape the aggregates.
	// Observations decay exponentially with this as the effective window.
	WindowSize int
	// MinSamples is the observation count below which Adapt is a no-op.
	MinSamples int
}

func (c *Config) defaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 50
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 5
	}
}

// Learner maintains per-user rolling style aggregates and rewrites draft
// replies to match them. Observe mutates the stored profile; Adapt only
// reads it.
type Learner struct {
	cfg    Config
	styles store.StyleStore
	log    *logger.Logger
}

func NewLearner(cfg Config, styles store.StyleStore, log *logger.Logger) *Learner {
	cfg.defaults()
	return &Learner{cfg: cfg, styles: styles, log: log.WithComponent("style")}
}

var emojiRe = regexp.MustCompile(`[\x{1F300}-\x{1F5FF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{1F900}-\x{1F9FF}\x{2600}-\x{27BF}]`)

var formalSignals = []string{"please", "thank you", "appreciate", "grateful"}
var casualSignals = []string{"lol", "haha", "yeah", "gonna", "wanna", "hey"}

// Observe folds one inbound message into the user's rolling aggregates.
// Each aggregate is an exponentially weighted average with alpha =
// 1/WindowSize, so older messages fade rather than drop off a cliff.
func (l *Learner) Observe(userID uint, text string) error {
	profile, err := l.styles.Get(userID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &models.StyleProfile{UserID: userID}
	}

	length := float64(len(text))
	emoji := 0.0
	if emojiRe.MatchString(text) {
		emoji = 1.0
	}

	lower := strings.ToLower(text)
	// Per-message formality signal on [-1, 1]: positive formal, negative
	// casual.
	signal := 0.0
	for _, s := range formalSignals {
		if strings.Contains(lower, s) {
			signal += 1
		}
	}
	for _, s := range casualSignals {
		if strings.Contains(lower, s) {
			signal -= 1
		}
	}
	if signal > 1 {
		signal = 1
	} else if signal < -1 {
		signal = -1
	}

	if profile.SampleCount == 0 {
		profile.AvgLength = length
		profile.EmojiRatio = emoji
		profile.Formality = signal
	} else {
		alpha := 1.0 / float64(l.cfg.WindowSize)
		profile.AvgLength += alpha * (length - profile.AvgLength)
		profile.EmojiRatio += alpha * (emoji - profile.EmojiRatio)
		profile.Formality += alpha * (signal - profile.Formality)
	}

	switch greetingOf(lower) {
	case "hi":
		profile.GreetingHi++
	case "hey":
		profile.GreetingHey++
	case "hello":
		profile.GreetingHello++
	}

	profile.SampleCount++
	profile.UpdatedAt = time.Now()

	return l.styles.Upsert(profile)
}

func greetingOf(lower string) string {
	for _, g := range []string{"hi", "hey", "hello"} {
		for _, sep := range []string{" ", "!", ","} {
			if strings.HasPrefix(lower, g+sep) {
				return g
			}
		}
		if lower == g {
			return g
		}
	}
	return ""
}

// Adapt rewrites a draft reply toward the user's learned style. It is a
// pure transformation of the draft; the profile is read, never written.
// With fewer than MinSamples observations it returns the draft untouched,
// because guessing a style is worse than having none.
func (l *Learner) Adapt(userID uint, draft string) (string, error) {
	profile, err := l.styles.Get(userID)
	if err != nil {
		return draft, err
	}
	if profile == nil || profile.SampleCount < l.cfg.MinSamples {
		return draft, nil
	}

	adapted := draft

	// Greeting swap: only when the draft opens with a greeting.
	preferred := profile.PreferredGreeting()
	for _, g := range []string{"Hi", "Hey", "Hello"} {
		if strings.HasPrefix(adapted, g+" ") || strings.HasPrefix(adapted, g+"!") || strings.HasPrefix(adapted, g+",") {
			if g != preferred {
				adapted = preferred + adapted[len(g):]
			}
			break
		}
	}

	// Short-message users get the first two sentences.
	if profile.AvgLength < 30 && len(adapted) > 150 {
		sentences := strings.SplitAfter(adapted, ". ")
		if len(sentences) > 2 {
			adapted = strings.TrimSpace(sentences[0] + sentences[1])
		}
	}

	switch profile.FormalityBand() {
	case models.FormalityCasual:
		adapted = strings.NewReplacer(
			"I would", "I'd",
			"You are", "You're",
			"I am", "I'm",
			"do not", "don't",
		).Replace(adapted)
	case models.FormalityFormal:
		adapted = strings.NewReplacer(
			"I'm", "I am",
			"you're", "you are",
			"I'd", "I would",
			"don't", "do not",
		).Replace(adapted)
	}

	// Users who never use emoji get emoji-free replies.
	if profile.EmojiRatio < 0.05 {
		adapted = strings.TrimSpace(emojiRe.ReplaceAllString(adapted, ""))
	}

	return adapted, nil
}
