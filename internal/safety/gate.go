package safety

import (
	"strings"

	"companion-bot/backend/internal/models"
	"companion-bot/backend/pkg/logger"
)

// CrisisSignal describes a gate match. Nil means no crisis was detected.
type CrisisSignal struct {
	Category models.CrisisCategory
	Severity models.Severity
	// Matched holds the text fragments that triggered the signal.
	Matched []string
}

// Gate classifies messages against an injected crisis catalog. It holds
// no mutable state and is safe for concurrent use.
type Gate struct {
	catalog Catalog
	enabled bool
	log     *logger.Logger
}

func NewGate(catalog Catalog, enabled bool, log *logger.Logger) *Gate {
	if !enabled {
		log.Warn("Crisis detection is DISABLED, do not run this configuration in production")
	}
	return &Gate{catalog: catalog, enabled: enabled, log: log}
}

// Evaluate scans text for crisis signals. It never returns an error:
// empty or malformed input yields no match. Categories are checked in
// priority order and the first category with any match wins; within that
// category the most severe matching tier is reported.
func (g *Gate) Evaluate(text string) *CrisisSignal {
	if !g.enabled {
		return nil
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}

	for _, cat := range g.catalog {
		var signal *CrisisSignal
		for _, tier := range cat.tiers {
			for _, pattern := range tier.patterns {
				match := pattern.FindString(normalized)
				if match == "" {
					continue
				}
				if signal == nil {
					signal = &CrisisSignal{
						Category: cat.category,
						Severity: tier.severity,
					}
				}
				signal.Matched = append(signal.Matched, match)
			}
			// Tiers are ordered most severe first. Once a tier matched,
			// lower tiers in the same category add nothing.
			if signal != nil {
				break
			}
		}
		if signal != nil {
			g.log.Warn("Crisis signal detected",
				"category", string(signal.Category),
				"severity", string(signal.Severity),
				"matched", strings.Join(signal.Matched, "; "),
			)
			return signal
		}
	}
	return nil
}
