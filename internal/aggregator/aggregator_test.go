package aggregator

import (
	"io"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/models"
	"github.com/arnold/steady-api/internal/tracker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAggregator() *Aggregator {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l)
}

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func goal(typ models.GoalType, remaining int) models.Goal {
	return models.Goal{ID: uuid.New(), Text: string(typ), GoalType: typ, Remaining: remaining}
}

func TestRelevant(t *testing.T) {
	assert.True(t, Relevant(models.GoalTypeAlways, calendar.Today))
	assert.False(t, Relevant(models.GoalTypeWeek, calendar.Today))
	assert.True(t, Relevant(models.GoalTypeToday, calendar.Week))
	assert.True(t, Relevant(models.GoalTypeWeek, calendar.Month))
	assert.False(t, Relevant(models.GoalTypeMonth, calendar.Week))
	assert.True(t, Relevant(models.GoalTypeOnetime, calendar.Onetime))
	assert.False(t, Relevant(models.GoalTypeAlways, calendar.Onetime))
}

func TestView_ThreeAlwaysGoals(t *testing.T) {
	a := newAggregator()
	today := date(t, "2024-03-13")
	goals := []models.Goal{
		goal(models.GoalTypeAlways, 1),
		goal(models.GoalTypeAlways, 1),
		goal(models.GoalTypeAlways, 1),
	}
	done := tracker.Set{{GoalID: goals[1].ID, Date: today, Index: 0}: {}}

	v, err := a.View(goals, calendar.Today, today, done)
	require.NoError(t, err)

	assert.Equal(t, 3, v.Total)
	assert.Equal(t, 1, v.CompletedCount)
	assert.Equal(t, []civil.Date{today}, v.Dates)
	for i, o := range v.Occurrences {
		assert.Equal(t, goals[i].ID, o.GoalID)
	}

	assert.True(t, a.Summary(goals[1], today, done).Completed)
	assert.False(t, a.Summary(goals[0], today, done).Completed)
}

func TestView_FiltersByContext(t *testing.T) {
	a := newAggregator()
	today := date(t, "2024-03-13")
	week := goal(models.GoalTypeWeek, 1)
	month := goal(models.GoalTypeMonth, 1)
	daily := goal(models.GoalTypeToday, 1)
	goals := []models.Goal{week, month, daily}

	v, err := a.View(goals, calendar.Today, today, nil)
	require.NoError(t, err)
	require.Len(t, v.Occurrences, 1)
	assert.Equal(t, daily.ID, v.Occurrences[0].GoalID)

	v, err = a.View(goals, calendar.Week, today, nil)
	require.NoError(t, err)
	assert.Equal(t, 1+7, v.Total)

	v, err = a.View(goals, calendar.Month, today, nil)
	require.NoError(t, err)
	// week + month + today..31st of daily
	assert.Equal(t, 1+1+19, v.Total)

	v, err = a.View(goals, calendar.Onetime, today, nil)
	require.NoError(t, err)
	assert.Empty(t, v.Occurrences)
	assert.NotNil(t, v.Occurrences)
}

func TestView_UnknownContext(t *testing.T) {
	_, err := newAggregator().View(nil, calendar.Context("year"), date(t, "2024-03-13"), nil)
	assert.ErrorIs(t, err, calendar.ErrUnknownContext)
}

func TestSummary_HomeContexts(t *testing.T) {
	a := newAggregator()
	today := date(t, "2024-03-15")
	week := goal(models.GoalTypeWeek, 1)
	target := "2024-03-20"
	later := goal(models.GoalTypeOnetime, 1)
	later.TargetDate = &target

	done := tracker.Set{{GoalID: week.ID, Date: date(t, "2024-03-12"), Index: 0}: {}}

	s := a.Summary(week, today, done)
	assert.True(t, s.HasInstances)
	assert.True(t, s.Completed)

	s = a.Summary(later, today, done)
	assert.False(t, s.HasInstances)
	assert.False(t, s.Completed)
}

func TestLookupSpan(t *testing.T) {
	// Week of Monday 2024-04-29 straddles April and May.
	span := LookupSpan(date(t, "2024-05-01"))
	assert.Equal(t, date(t, "2024-04-29"), span.From)
	assert.Equal(t, date(t, "2024-05-31"), span.To)

	span = LookupSpan(date(t, "2024-03-13"))
	assert.Equal(t, date(t, "2024-03-01"), span.From)
	assert.Equal(t, date(t, "2024-03-31"), span.To)
}
