package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-bot/backend/internal/models"
	"companion-bot/backend/pkg/logger"
)

// monday is a known Monday used as the reference time throughout.
var monday = time.Date(2025, time.March, 3, 9, 30, 0, 0, time.UTC)

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	return NewExtractor(WeekdayNextWeek, log)
}

func TestExtractTestOnFriday(t *testing.T) {
	ex := testExtractor(t)

	out := ex.Extract("I have a test on Friday", monday)
	require.Len(t, out, 1)

	ev := out[0]
	assert.Equal(t, models.EventTest, ev.Type)
	// Reference is Monday March 3, so "Friday" is March 7 of the same week.
	assert.Equal(t, time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC), ev.Date)
	assert.Equal(t, "high", ev.Importance)
	assert.Contains(t, ev.Description, "test")
}

func TestExtractRelativeExpressions(t *testing.T) {
	ex := testExtractor(t)

	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{
			name: "today",
			text: "my therapy appointment is today",
			want: time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "tomorrow",
			text: "job interview tomorrow",
			want: time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "in N days",
			text: "my paper is due in 3 days",
			want: time.Date(2025, time.March, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "N days from now",
			text: "big presentation 5 days from now",
			want: time.Date(2025, time.March, 8, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "this week resolves to Friday",
			text: "I have an exam this week",
			want: time.Date(2025, time.March, 7, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "next week resolves to Monday",
			text: "deadline is next week",
			want: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "explicit next weekday skips a week",
			text: "test next friday",
			want: time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ex.Extract(tt.text, monday)
			require.NotEmpty(t, out)
			assert.Equal(t, tt.want, out[0].Date)
		})
	}
}

func TestExtractSameWeekdayPolicy(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})

	// Reference is a Monday; the message names Monday.
	nextWeek := NewExtractor(WeekdayNextWeek, log)
	out := nextWeek.Extract("exam on monday", monday)
	require.Len(t, out, 1)
	assert.Equal(t, time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC), out[0].Date)

	sameDay := NewExtractor(WeekdayToday, log)
	out = sameDay.Extract("exam on monday", monday)
	require.Len(t, out, 1)
	assert.Equal(t, time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC), out[0].Date)
}

func TestExtractDropsUndatedEvents(t *testing.T) {
	ex := testExtractor(t)

	// Event keyword with no temporal expression: silently dropped.
	assert.Empty(t, ex.Extract("I'm worried about my test", monday))
	// Temporal expression with no event keyword.
	assert.Empty(t, ex.Extract("tomorrow will be better", monday))
	// Nothing at all.
	assert.Empty(t, ex.Extract("", monday))
}

func TestExtractMultipleEventTypes(t *testing.T) {
	ex := testExtractor(t)

	out := ex.Extract("I have a test and a job interview on Friday", monday)
	require.Len(t, out, 2)

	types := []models.EventType{out[0].Type, out[1].Type}
	assert.Contains(t, types, models.EventTest)
	assert.Contains(t, types, models.EventInterview)
}

func TestExtractImportance(t *testing.T) {
	ex := testExtractor(t)

	out := ex.Extract("maybe a party tomorrow", monday)
	require.Len(t, out, 1)
	assert.Equal(t, models.EventOther, out[0].Type)
	assert.Equal(t, "low", out[0].Importance)

	out = ex.Extract("really worried about my appointment tomorrow", monday)
	require.Len(t, out, 1)
	assert.Equal(t, "high", out[0].Importance)
}
