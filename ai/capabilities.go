package ai

import (
	"math/rand"
	"strings"
	"time"
)

// Turn is one message of conversation context handed to a capability.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ResponseCapability generates a reply for a routed message.
type ResponseCapability interface {
	// Name is the routing key, e.g. "cbt".
	Name() string
	// Profile is the semantic description embedded at router startup.
	// Vocabulary here should match how users actually phrase concerns.
	Profile() string
	Generate(userMessage string, history []Turn) (string, error)
}

// Registry holds capabilities in registration order. Order is load-bearing:
// the router breaks score ties in favor of the earliest registration.
type Registry struct {
	ordered []ResponseCapability
	byName  map[string]ResponseCapability
}

func NewRegistry(capabilities ...ResponseCapability) *Registry {
	r := &Registry{byName: make(map[string]ResponseCapability)}
	for _, c := range capabilities {
		r.Register(c)
	}
	return r
}

func (r *Registry) Register(c ResponseCapability) {
	if _, exists := r.byName[c.Name()]; exists {
		return
	}
	r.ordered = append(r.ordered, c)
	r.byName[c.Name()] = c
}

func (r *Registry) Get(name string) (ResponseCapability, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// All returns capabilities in registration order.
func (r *Registry) All() []ResponseCapability {
	return r.ordered
}

// DefaultRegistry returns the standard capability set.
func DefaultRegistry() *Registry {
	return NewRegistry(NewCBTCapability(), NewMindfulnessCapability(), NewMotivationCapability())
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func pick(options []string) string {
	return options[rand.Intn(len(options))]
}

// CBTCapability handles anxiety, depression and negative thought patterns
// with rule-based cognitive behavioral therapy responses.
type CBTCapability struct {
	validations []string
	questions   []string
	anxietyTips []string
	lowMoodTips []string
}

func NewCBTCapability() *CBTCapability {
	return &CBTCapability{
		validations: []string{
			"I hear that you're going through a difficult time.",
			"Thank you for sharing that with me. It takes courage to talk about these feelings.",
			"What you're experiencing sounds really challenging.",
			"I appreciate you opening up about this.",
		},
		questions: []string{
			"What evidence do you have that supports this thought?",
			"What evidence contradicts this thought?",
			"Is there another way to look at this situation?",
			"What would you tell a friend who had this thought?",
			"How likely is it that your fear will actually happen?",
			"Are you confusing a thought with a fact?",
		},
		anxietyTips: []string{
			"Grounding exercise: name 5 things you can see, 4 you can touch, 3 you can hear, 2 you can smell, and 1 you can taste. This brings you back to the present moment.",
			"Breathing exercise: try 4-7-8 breathing. Breathe in for 4 counts, hold for 7, exhale for 8.",
			"Thought challenge: write down your worry, then write the evidence for and against it. Fears are often more extreme than reality.",
			"Worry time: set aside 15 minutes to worry. When anxious thoughts come outside this time, remind yourself you'll address them then.",
		},
		lowMoodTips: []string{
			"Behavioral activation: even when you don't feel like it, try one small pleasant activity. Action often improves mood before motivation arrives.",
			"Break it down: overwhelming tasks paralyze us. What's one tiny thing you could do today?",
			"Self-compassion: notice how harshly you're talking to yourself. Would you speak to a friend this way?",
		},
	}
}

func (c *CBTCapability) Name() string { return "cbt" }

func (c *CBTCapability) Profile() string {
	return "Cognitive Behavioral Therapy expert specializing in anxiety, worry, depression, " +
		"negative thoughts, catastrophic thinking, rumination, panic attacks, social anxiety, " +
		"fear, phobias, obsessive thoughts, irrational beliefs, cognitive distortions, " +
		"thought patterns, mental spirals, overthinking, self-criticism, and emotional regulation."
}

func (c *CBTCapability) Generate(userMessage string, _ []Turn) (string, error) {
	lower := strings.ToLower(userMessage)

	var parts []string
	parts = append(parts, pick(c.validations))

	switch {
	case containsAny(lower, "anxious", "anxiety", "worry", "worried", "panic", "nervous", "fear", "scared"):
		parts = append(parts,
			"Anxiety often involves our mind predicting negative outcomes that may not happen. Let's examine these thoughts together.",
			pick(c.questions),
			pick(c.anxietyTips))
	case containsAny(lower, "depressed", "depression", "hopeless", "worthless", "sad", "empty", "numb"):
		parts = append(parts,
			"Depression can make everything feel heavy and hopeless. These feelings, while real, don't reflect the complete reality.",
			"One of the hardest things about depression is the loss of motivation. Action often precedes motivation, not the other way around.",
			pick(c.lowMoodTips))
	case containsAny(lower, "overthinking", "ruminating", "can't stop thinking", "racing thoughts", "spiraling"):
		parts = append(parts,
			"Racing thoughts and rumination are exhausting. When we get stuck in thought loops, we're usually trying to solve a problem that can't be solved through thinking alone.",
			"Instead of 'I'm worthless', try 'I'm having the thought that I'm worthless.' This creates distance between you and your thoughts.",
			pick(c.questions))
	case containsAny(lower, "failure", "not good enough", "stupid", "useless", "hate myself"):
		parts = append(parts,
			"It sounds like you're being very hard on yourself. Self-criticism often comes from trying to protect ourselves, but it usually makes us feel worse.",
			"Try this: write down what your inner critic is saying, then write what a compassionate friend would say to you instead.",
			pick(c.questions))
	default:
		parts = append(parts,
			"In CBT, we work on the connection between thoughts, feelings, and behaviors. Often, changing how we think about a situation can change how we feel and act.",
			pick(c.questions))
	}

	parts = append(parts, "What comes up for you when you consider this?")
	return strings.Join(parts, "\n\n"), nil
}

// MindfulnessCapability handles stress, overwhelm and present-moment
// difficulties with breathing and grounding guidance.
type MindfulnessCapability struct {
	acknowledgments []string
	breathing       []string
	grounding       []string
	quick           []string
}

func NewMindfulnessCapability() *MindfulnessCapability {
	return &MindfulnessCapability{
		acknowledgments: []string{
			"It sounds like you're carrying a lot right now.",
			"I hear that you're feeling overwhelmed. Let's take this moment to pause together.",
			"Thank you for sharing. Sometimes just acknowledging how we feel is the first step.",
			"It takes awareness to recognize when we need to slow down.",
		},
		breathing: []string{
			"4-7-8 breathing: exhale completely, breathe in through your nose for 4 counts, hold for 7, exhale through your mouth for 8. Repeat 3-4 times. The extended exhale signals your body to relax.",
			"Box breathing: breathe in for 4 counts, hold for 4, breathe out for 4, hold for 4. Repeat for a few minutes. Equal counts create rhythmic balance in your nervous system.",
			"Belly breathing: place one hand on your chest and one on your belly. Breathe in slowly through your nose so your belly hand rises more than your chest hand, then exhale slowly.",
		},
		grounding: []string{
			"5-4-3-2-1 grounding: notice and name 5 things you can see, 4 you can touch, 3 you can hear, 2 you can smell, and 1 you can taste.",
			"Physical grounding: press your feet firmly into the floor. Notice the contact points and the solidity supporting you, then take 5 deep breaths.",
			"Cold water grounding: hold ice cubes, splash cold water on your face, or run cold water over your wrists. Focus completely on the sensation.",
		},
		quick: []string{
			"One mindful breath: stop right now and take one full, deep breath. Notice the inhale, the pause, the exhale. That's it.",
			"Hand on heart: place your hand on your heart and feel it beating. Breathe into this awareness.",
			"Three-breath reset: breath one releases tension, breath two arrives in this moment, breath three sets your intention.",
		},
	}
}

func (c *MindfulnessCapability) Name() string { return "mindfulness" }

func (c *MindfulnessCapability) Profile() string {
	return "Mindfulness and meditation expert specializing in stress, overwhelm, burnout, " +
		"being present, grounding, breathing exercises, relaxation, tension, restlessness, " +
		"sleep problems, insomnia, racing mind, difficulty focusing, distraction, " +
		"needing calm, wanting peace, feeling scattered, needing to slow down, " +
		"body awareness, and mind-body connection."
}

func (c *MindfulnessCapability) Generate(userMessage string, _ []Turn) (string, error) {
	lower := strings.ToLower(userMessage)

	var parts []string
	parts = append(parts, pick(c.acknowledgments))

	switch {
	case containsAny(lower, "sleep", "insomnia", "tired", "restless", "awake"):
		parts = append(parts,
			"Sleep difficulties are frustrating. When we can't sleep, we often try harder, which paradoxically keeps us awake.",
			"Try breath counting: count each exhale up to 10, then start over. When your mind wanders, gently return to 1. And if you're awake for more than 20 minutes, get up and do something calming before trying again.")
	case containsAny(lower, "stressed", "stress", "overwhelmed", "too much", "burnout", "exhausted", "calm", "relax"):
		parts = append(parts,
			"When we're stressed, our nervous system is in fight-or-flight mode. Breathwork can shift us into rest-and-digest mode.",
			pick(c.breathing),
			"Take your time with this. Even two or three minutes can make a difference.")
	case containsAny(lower, "anxious", "panic", "racing", "worried", "nervous", "tense"):
		parts = append(parts,
			"When anxiety is high, our mind goes to the past or the future. Grounding brings us back to the only moment we can actually inhabit.",
			pick(c.grounding))
	case containsAny(lower, "focus", "concentrate", "distracted", "scattered"):
		parts = append(parts,
			"Difficulty focusing is incredibly common. Minds naturally wander. Mindfulness isn't about stopping thoughts, but noticing when we've wandered and gently returning.",
			"Choose one object of attention, like your breath. When you notice you've wandered, that's a win, because you've become aware. Gently return. Start with just two minutes.")
	default:
		parts = append(parts,
			"Mindfulness is about being present with whatever is here, without judgment. Not trying to feel better, but being willing to feel what's present.",
			pick(c.quick))
	}

	parts = append(parts, "How are you feeling right now, in this moment?")
	return strings.Join(parts, "\n\n"), nil
}

// MotivationCapability handles procrastination, feeling stuck and low
// confidence with coaching-style responses.
type MotivationCapability struct {
	validations []string
	starters    []string
	confidence  []string
	boosts      []string
}

func NewMotivationCapability() *MotivationCapability {
	return &MotivationCapability{
		validations: []string{
			"Feeling stuck is one of the most frustrating experiences. You're not alone in this.",
			"It takes courage to admit when we're struggling with motivation. That awareness is already a step forward.",
			"The gap between where you are and where you want to be can feel enormous. Let's make it smaller together.",
			"Lack of motivation doesn't mean lack of worth. Let's explore what's getting in your way.",
		},
		starters: []string{
			"The 2-minute rule: commit to working on your task for just 2 minutes. Starting is the hardest part, and once you start, you'll often continue. You don't need motivation to start; you need to start to find motivation.",
			"Break it down: take your big task and shrink it to the smallest possible next step. Not 'write the paper' but 'open a blank document'. What's the tiniest possible next step for you?",
		},
		confidence: []string{
			"Low self-esteem has selective memory. Try listing 5 things you've accomplished, 3 challenges you've overcome, and 2 skills you've developed. These are facts, not opinions.",
			"You're comparing your behind-the-scenes with everyone else's highlight reel. Instead of 'Am I good enough compared to them?', ask 'Am I better than I was yesterday?'",
			"Research shows self-compassion is more motivating than self-criticism. When you struggle, try: 'This is hard. Many people struggle with this. What can I learn?'",
		},
		boosts: []string{
			"The done list: instead of a to-do list, write what you have done today. It builds momentum and counteracts 'I never accomplish anything' thoughts.",
			"Five-minute win: choose one tiny task you've been avoiding, set a timer for 5 minutes, and do it.",
			"Momentum ritual: do one small productive thing every morning. It builds an 'I'm someone who follows through' identity.",
		},
	}
}

func (c *MotivationCapability) Name() string { return "motivation" }

func (c *MotivationCapability) Profile() string {
	return "Motivation and self-efficacy expert specializing in procrastination, lack of motivation, " +
		"low energy, feeling stuck, goal-setting, achievement, productivity, self-discipline, " +
		"confidence, self-esteem, self-worth, imposter syndrome, failure, giving up, " +
		"losing hope in goals, career stress, performance anxiety, feeling unmotivated, " +
		"lack of direction, purpose, and personal growth."
}

func (c *MotivationCapability) Generate(userMessage string, _ []Turn) (string, error) {
	lower := strings.ToLower(userMessage)

	var parts []string
	parts = append(parts, pick(c.validations))

	switch {
	case containsAny(lower, "procrastinat", "putting off", "avoiding", "can't start"):
		parts = append(parts,
			"Procrastination isn't laziness. It's often perfectionism, fear of failure, or task overwhelm wearing a disguise.",
			pick(c.starters))
	case containsAny(lower, "not good enough", "self-esteem", "no confidence", "worthless", "imposter"):
		parts = append(parts, pick(c.confidence))
	case containsAny(lower, "failed", "failure", "gave up", "quit", "didn't work"):
		parts = append(parts,
			"A fixed mindset says 'I'm not good at this'. A growth mindset says 'I'm not good at this yet'.",
			"Try reframing: 'I failed' becomes 'I learned what doesn't work'. Struggle is part of growth, not evidence you lack talent.")
	case containsAny(lower, "goal", "achieve", "accomplish", "success"):
		parts = append(parts,
			"Vague goals stall; specific ones move. Make it SMART: specific, measurable, achievable, relevant, and time-bound.",
			"For every outcome you want, ask what process would get you there. You control the process, not the outcome.")
	default:
		parts = append(parts,
			"Motivation follows action, not the other way around. Small wins build momentum.",
			pick(c.boosts))
	}

	parts = append(parts, "What would the smallest first step look like for you?")
	return strings.Join(parts, "\n\n"), nil
}
