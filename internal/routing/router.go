package routing

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"companion-bot/backend/ai"
	"companion-bot/backend/pkg/cache"
	"companion-bot/backend/pkg/logger"
	"companion-bot/backend/pkg/metrics"
)

// Decision is the outcome of routing one message. Scores always carries
// every registered capability, even though only Capability is dispatched.
type Decision struct {
	Capability string             `json:"capability"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
	Fallback   bool               `json:"fallback"`
}

// Config tunes router behavior.
type Config struct {
	// ConfidenceFloor is the minimum similarity for a direct route.
	// Below it the router falls back to DefaultCapability.
	ConfidenceFloor   float64
	DefaultCapability string
	// EmbedTimeout bounds each embedding call. A timeout routes to the
	// default capability instead of failing the request.
	EmbedTimeout time.Duration
	// EmbedCacheTTL controls how long message embeddings are reused.
	EmbedCacheTTL time.Duration
}

type profileVector struct {
	name   string
	vector []float32
}

// Router scores messages against capability profiles by cosine
// similarity. Profile vectors are embedded once at construction and
// cached for the process lifetime.
type Router struct {
	embedder ai.EmbeddingProvider
	registry *ai.Registry
	profiles []profileVector
	cfg      Config
	cache    *cache.Cache
	log      *logger.Logger
}

// NewRouter embeds every registered capability profile up front. It
// fails hard if any profile cannot be embedded: a router with a partial
// profile set would silently misroute.
func NewRouter(ctx context.Context, embedder ai.EmbeddingProvider, registry *ai.Registry, cfg Config, log *logger.Logger) (*Router, error) {
	if _, ok := registry.Get(cfg.DefaultCapability); !ok {
		return nil, fmt.Errorf("default capability %q is not registered", cfg.DefaultCapability)
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}
	if cfg.EmbedCacheTTL <= 0 {
		cfg.EmbedCacheTTL = 5 * time.Minute
	}

	r := &Router{
		embedder: embedder,
		registry: registry,
		cfg:      cfg,
		cache:    cache.New(cfg.EmbedCacheTTL, time.Minute, 1024),
		log:      log.WithComponent("router"),
	}
	for _, capability := range registry.All() {
		embedCtx, cancel := context.WithTimeout(ctx, cfg.EmbedTimeout)
		vec, err := embedder.Embed(embedCtx, capability.Profile())
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embed profile for %q: %w", capability.Name(), err)
		}
		r.profiles = append(r.profiles, profileVector{name: capability.Name(), vector: vec})
	}
	r.log.Info("Capability profiles embedded", "count", len(r.profiles))
	return r, nil
}

// Route picks a capability for the message. It always returns a decision:
// embedding failures and sub-floor scores route to the default capability.
func (r *Router) Route(ctx context.Context, text string) *Decision {
	msgVec, err := r.embed(ctx, text)
	if err != nil {
		r.log.LogError(err, "Message embedding failed, routing to default",
			"default", r.cfg.DefaultCapability)
		decision := &Decision{
			Capability: r.cfg.DefaultCapability,
			Confidence: 0,
			Scores:     r.zeroScores(),
			Fallback:   true,
		}
		r.record(decision)
		return decision
	}

	scores := make(map[string]float64, len(r.profiles))
	best := r.profiles[0].name
	bestScore := math.Inf(-1)
	// Iteration follows registration order, so ties keep the earliest
	// registered capability.
	for _, p := range r.profiles {
		score := cosineSimilarity(msgVec, p.vector)
		scores[p.name] = score
		if score > bestScore {
			bestScore = score
			best = p.name
		}
	}

	decision := &Decision{
		Capability: best,
		Confidence: bestScore,
		Scores:     scores,
	}
	if bestScore < r.cfg.ConfidenceFloor {
		decision.Capability = r.cfg.DefaultCapability
		decision.Fallback = true
	}
	r.record(decision)
	return decision
}

func (r *Router) embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := r.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()
	vec, err := r.embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, err
	}
	r.cache.Set(text, vec)
	return vec, nil
}

func (r *Router) zeroScores() map[string]float64 {
	scores := make(map[string]float64, len(r.profiles))
	for _, p := range r.profiles {
		scores[p.name] = 0
	}
	return scores
}

func (r *Router) record(d *Decision) {
	metrics.RoutingDecisions.WithLabelValues(d.Capability, strconv.FormatBool(d.Fallback)).Inc()
}

// cosineSimilarity returns 0 for mismatched dimensions or zero vectors,
// which naturally falls below any sane confidence floor.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
