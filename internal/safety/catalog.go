package safety

import (
	"regexp"

	"companion-bot/backend/internal/models"
)

// Catalog is the ordered set of crisis signal patterns the gate matches
// against. Built once at startup and passed into NewGate.
type Catalog []categoryPatterns

// categoryPatterns holds one category's signals grouped by severity,
// most severe first.
type categoryPatterns struct {
	category models.CrisisCategory
	tiers    []severityTier
}

type severityTier struct {
	severity models.Severity
	patterns []*regexp.Regexp
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// DefaultCatalog builds the built-in catalog, ordered by category
// priority. When a message matches more than one category, the earliest
// entry wins regardless of where the match sits in the text. Patterns
// are matched against lowercased input.
//
// The signal set is intentionally over-inclusive. False positives are
// acceptable here; false negatives are the dangerous failure mode.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			category: models.CrisisSuicide,
			tiers: []severityTier{
				{
					severity: models.SeverityCritical,
					patterns: compileAll(
						`\b(going to|gonna|about to)\s+(kill myself|end it|commit suicide|take my life)\b`,
						`\b(tonight|today|right now|soon)\b.*\b(kill myself|end it|suicide)\b`,
						`\b(goodbye|farewell)\b.*\b(cruel world|everyone|forever)\b`,
						`\b(wrote|writing)\s+(a\s+)?(suicide note|goodbye letter)\b`,
						`\bhave\s+(pills|a gun|gun|rope|blade)\b.*\b(ready|here|with me)\b`,
					),
				},
				{
					severity: models.SeverityHigh,
					patterns: compileAll(
						`\bwant to\s+(die|kill myself|end (it|my life)|commit suicide)\b`,
						`\b(wish i|should|would rather)\s+(were dead|was dead|didn't exist)\b`,
						`\bplan(ning)?\s+to\s+(kill myself|commit suicide|end it)\b`,
						`\bworld\b.*\bbetter\b.*\bwithout me\b`,
						`\b(can't go on|don't want to live)\b`,
						`\bthinking about\s+(suicide|killing myself|ending it)\b`,
					),
				},
				{
					severity: models.SeverityMedium,
					patterns: compileAll(
						`\blife\b.*\bnot worth living\b`,
						`\bno reason to (live|be here|continue|go on)\b`,
						`\beveryone\b.*\bbetter off\b.*\bwithout me\b`,
						`\btired of (living|life|existing|being alive)\b`,
					),
				},
			},
		},
		{
			category: models.CrisisHarmToOthers,
			tiers: []severityTier{
				{
					severity: models.SeverityCritical,
					patterns: compileAll(
						`\b(going to|gonna)\s+(kill|hurt|attack)\s+(him|her|them|someone)\b`,
						`\bhave\s+(a\s+)?(gun|weapon|knife)\b.*\b(ready|with me|loaded)\b`,
					),
				},
				{
					severity: models.SeverityHigh,
					patterns: compileAll(
						`\bwant to\s+(kill|hurt|harm)\s+(someone|people|them)\b`,
						`\bthey deserve to (die|suffer|pay)\b`,
						`\bplan(ning)?\s+to\s+(kill|hurt|attack)\b`,
					),
				},
				{
					severity: models.SeverityMedium,
					patterns: compileAll(
						`\bviolent thoughts\b`,
						`\bimagining\s+(hurting|killing|harming)\b`,
						`\bfantasies about\s+(violence|hurting)\b`,
					),
				},
			},
		},
		{
			category: models.CrisisSelfHarm,
			tiers: []severityTier{
				{
					severity: models.SeverityHigh,
					patterns: compileAll(
						`\b(cutting|burning|hurting)\s+myself\b`,
						`\b(cut|hurt|harm)\s+myself\b.*\b(again|today|tonight)\b`,
						`\bself(-| )harm\b`,
						`\burge to\s+(cut|hurt|harm)\b`,
					),
				},
				{
					severity: models.SeverityMedium,
					patterns: compileAll(
						`\bwant to\s+(cut|hurt|harm)\s+myself\b`,
						`\bthinking about\s+(cutting|hurting)\b`,
						`\bdeserve\s+(pain|to hurt|to suffer)\b`,
					),
				},
			},
		},
		{
			category: models.CrisisAbuse,
			tiers: []severityTier{
				{
					severity: models.SeverityHigh,
					patterns: compileAll(
						`\b(he|she|they)\b.*\b(hits|beats|hurts|touches)\s+me\b`,
						`\b(being|been)\s+(abused|molested|raped|assaulted)\b`,
						`\b(my|the)\s+(dad|mom|parent|husband|wife|partner|boyfriend|girlfriend)\b.*\b(hits|beats|hurts|abuses)\b`,
					),
				},
				{
					severity: models.SeverityMedium,
					patterns: compileAll(
						`\bafraid of\s+(him|her|them|my\s+(partner|parent))\b`,
						`\bthreaten(s|ed)\s+to\s+(kill|hurt|harm)\s+me\b`,
					),
				},
			},
		},
		{
			category: models.CrisisSubstance,
			tiers: []severityTier{
				{
					severity: models.SeverityCritical,
					patterns: compileAll(
						`\b(overdosed|overdosing|took too many)\b`,
						`\btook\s+\d+\s+(pills|tablets)\b`,
						`\bmixed\s+(alcohol|drugs)\s+with\b`,
					),
				},
				{
					severity: models.SeverityHigh,
					patterns: compileAll(
						`\bcan't stop\s+(drinking|using|taking)\b`,
						`\baddicted to\b`,
						`\bwithdrawal\s+(symptoms|shakes)\b`,
					),
				},
			},
		},
		{
			category: models.CrisisMedical,
			tiers: []severityTier{
				{
					severity: models.SeverityCritical,
					patterns: compileAll(
						`\b(chest pain|can't breathe|heart attack|stroke)\b`,
						`\b(severe|extreme|unbearable)\s+pain\b`,
						`\bbleeding\b.*\b(won't stop|heavily|severely)\b`,
					),
				},
			},
		},
	}
}
