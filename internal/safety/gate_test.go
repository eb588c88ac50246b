package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-bot/backend/internal/models"
	"companion-bot/backend/pkg/logger"
)

func testGate(t *testing.T) *Gate {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	return NewGate(DefaultCatalog(), true, log)
}

func TestEvaluateDetectsCrisisCategories(t *testing.T) {
	gate := testGate(t)

	tests := []struct {
		name     string
		text     string
		category models.CrisisCategory
		severity models.Severity
	}{
		{
			name:     "imminent suicidal intent is critical",
			text:     "I'm going to kill myself",
			category: models.CrisisSuicide,
			severity: models.SeverityCritical,
		},
		{
			name:     "suicidal ideation is high",
			text:     "sometimes I just want to die",
			category: models.CrisisSuicide,
			severity: models.SeverityHigh,
		},
		{
			name:     "passive ideation is medium",
			text:     "I'm so tired of living like this",
			category: models.CrisisSuicide,
			severity: models.SeverityMedium,
		},
		{
			name:     "self harm",
			text:     "I've been cutting myself",
			category: models.CrisisSelfHarm,
			severity: models.SeverityHigh,
		},
		{
			name:     "harm to others",
			text:     "I want to hurt someone",
			category: models.CrisisHarmToOthers,
			severity: models.SeverityHigh,
		},
		{
			name:     "abuse disclosure",
			text:     "my husband hits me when he's angry",
			category: models.CrisisAbuse,
			severity: models.SeverityHigh,
		},
		{
			name:     "overdose is critical",
			text:     "I think I overdosed",
			category: models.CrisisSubstance,
			severity: models.SeverityCritical,
		},
		{
			name:     "medical emergency",
			text:     "I have chest pain and can't breathe",
			category: models.CrisisMedical,
			severity: models.SeverityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := gate.Evaluate(tt.text)
			require.NotNil(t, signal)
			assert.Equal(t, tt.category, signal.Category)
			assert.Equal(t, tt.severity, signal.Severity)
			assert.NotEmpty(t, signal.Matched)
		})
	}
}

func TestEvaluateNoMatch(t *testing.T) {
	gate := testGate(t)

	for _, text := range []string{
		"I have a math test on Friday",
		"feeling a bit stressed about work",
		"",
		"   ",
		"!!!???",
	} {
		assert.Nil(t, gate.Evaluate(text), "expected no signal for %q", text)
	}
}

func TestEvaluateCategoryPriority(t *testing.T) {
	gate := testGate(t)

	// Suicide outranks self-harm even when the self-harm phrase comes first.
	signal := gate.Evaluate("I keep cutting myself and I want to die")
	require.NotNil(t, signal)
	assert.Equal(t, models.CrisisSuicide, signal.Category)

	// Harm-to-others outranks abuse.
	signal = gate.Evaluate("he hits me and now I want to hurt someone")
	require.NotNil(t, signal)
	assert.Equal(t, models.CrisisHarmToOthers, signal.Category)
}

func TestEvaluateCaseInsensitive(t *testing.T) {
	gate := testGate(t)

	signal := gate.Evaluate("I WANT TO KILL MYSELF")
	require.NotNil(t, signal)
	assert.Equal(t, models.CrisisSuicide, signal.Category)
}

func TestEvaluateUsesInjectedCatalog(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})

	// The gate matches only what its catalog carries; an empty catalog
	// detects nothing even for phrases the default one flags.
	empty := NewGate(Catalog{}, true, log)
	assert.Nil(t, empty.Evaluate("I want to kill myself"))

	full := NewGate(DefaultCatalog(), true, log)
	require.NotNil(t, full.Evaluate("I want to kill myself"))
}

func TestEvaluateDisabledGate(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	gate := NewGate(DefaultCatalog(), false, log)

	assert.Nil(t, gate.Evaluate("I'm going to kill myself"))
}

func TestResponderIncludesHotline(t *testing.T) {
	responder := NewResponder("988")

	reply := responder.Respond(&CrisisSignal{
		Category: models.CrisisSuicide,
		Severity: models.SeverityCritical,
	})
	assert.Contains(t, reply, "988")
	assert.Contains(t, reply, "911")

	reply = responder.Respond(&CrisisSignal{
		Category: models.CrisisAbuse,
		Severity: models.SeverityHigh,
	})
	assert.Contains(t, reply, "1-800-799-7233")
	assert.True(t, strings.Contains(reply, "safety"))
}
