package recurrence

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/models"
	"github.com/arnold/steady-api/internal/tracker"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func window(t *testing.T, c calendar.Context, today string) calendar.Window {
	t.Helper()
	w, err := calendar.Resolve(c, date(t, today))
	require.NoError(t, err)
	return w
}

func goal(typ models.GoalType, remaining int) models.Goal {
	return models.Goal{ID: uuid.New(), Text: string(typ), GoalType: typ, Remaining: remaining}
}

func onetime(target string) models.Goal {
	g := goal(models.GoalTypeOnetime, 1)
	g.TargetDate = &target
	return g
}

func periodic(p models.PeriodicType, remaining int) models.Goal {
	g := goal(models.GoalTypePeriodic, remaining)
	g.PeriodicType = &p
	return g
}

func TestExpand_AlwaysPerDayIndices(t *testing.T) {
	g := goal(models.GoalTypeAlways, 2)
	today := date(t, "2024-03-13")
	done := tracker.Set{{GoalID: g.ID, Date: today, Index: 1}: {}}

	got := Expand([]models.Goal{g}, window(t, calendar.Today, "2024-03-13"), done)

	want := []Occurrence{
		{GoalID: g.ID, Text: g.Text, GoalType: g.GoalType, Date: today, Index: 0, PeriodStart: today, PeriodEnd: today},
		{GoalID: g.ID, Text: g.Text, GoalType: g.GoalType, Date: today, Index: 1, Completed: true, PeriodStart: today, PeriodEnd: today},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Expand() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_SameKeyAcrossContexts(t *testing.T) {
	g := goal(models.GoalTypeToday, 1)
	today := date(t, "2024-03-13")

	day := Expand([]models.Goal{g}, window(t, calendar.Today, "2024-03-13"), nil)
	week := Expand([]models.Goal{g}, window(t, calendar.Week, "2024-03-13"), nil)

	require.Len(t, day, 1)
	require.Len(t, week, 7)
	assert.Equal(t, day[0].Key(), week[2].Key())
	assert.Equal(t, today, week[2].Date)
}

func TestExpand_WeekAggregation(t *testing.T) {
	g := goal(models.GoalTypeWeek, 1)
	done := tracker.Set{{GoalID: g.ID, Date: date(t, "2024-03-13"), Index: 0}: {}}

	friday := Expand([]models.Goal{g}, window(t, calendar.Week, "2024-03-15"), done)
	require.Len(t, friday, 1)
	assert.True(t, friday[0].Completed)
	assert.Equal(t, date(t, "2024-03-11"), friday[0].Date)
	assert.Equal(t, date(t, "2024-03-17"), friday[0].PeriodEnd)

	monday := Expand([]models.Goal{g}, window(t, calendar.Week, "2024-03-18"), done)
	require.Len(t, monday, 1)
	assert.False(t, monday[0].Completed)
	assert.Equal(t, date(t, "2024-03-18"), monday[0].Date)
}

func TestExpand_MonthGoalLooksAtWholeMonth(t *testing.T) {
	g := goal(models.GoalTypeMonth, 2)
	done := tracker.Set{{GoalID: g.ID, Date: date(t, "2024-03-02"), Index: 1}: {}}

	got := Expand([]models.Goal{g}, window(t, calendar.Month, "2024-03-20"), done)
	require.Len(t, got, 2)
	assert.False(t, got[0].Completed)
	assert.True(t, got[1].Completed)
	assert.Equal(t, date(t, "2024-03-01"), got[1].Date)
	assert.Equal(t, date(t, "2024-03-31"), got[1].PeriodEnd)
}

func TestExpand_OnetimeBoundary(t *testing.T) {
	g := onetime("2024-03-15")
	goals := []models.Goal{g}

	cases := []struct {
		name    string
		context calendar.Context
		today   string
		want    int
	}{
		{"same week", calendar.Week, "2024-03-11", 1},
		{"next week", calendar.Week, "2024-03-18", 0},
		{"previous week", calendar.Week, "2024-03-08", 0},
		{"month before target", calendar.Month, "2024-03-01", 1},
		{"month after target", calendar.Month, "2024-03-16", 0},
		{"april", calendar.Month, "2024-04-01", 0},
		{"today on target", calendar.Today, "2024-03-15", 1},
		{"today off target", calendar.Today, "2024-03-14", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Expand(goals, window(t, tc.context, tc.today), nil)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestExpand_PeriodicDays(t *testing.T) {
	start := periodic(models.PeriodicStartOfMonth, 1)
	mid := periodic(models.PeriodicMidMonth, 2)
	end := periodic(models.PeriodicEndOfMonth, 1)
	goals := []models.Goal{start, mid, end}

	got := Expand(goals, window(t, calendar.Month, "2024-02-01"), nil)

	var dates []string
	for _, o := range got {
		dates = append(dates, o.Date.String())
	}
	assert.Equal(t, []string{"2024-02-01", "2024-02-15", "2024-02-15", "2024-02-29"}, dates)

	assert.Empty(t, Expand(goals, window(t, calendar.Today, "2024-02-14"), nil))
}

func TestExpand_SkipsMalformedGoals(t *testing.T) {
	good := goal(models.GoalTypeToday, 1)
	noRemaining := goal(models.GoalTypeToday, 0)
	unknown := goal(models.GoalType("yearly"), 1)
	badTarget := onetime("15/03/2024")
	noPeriod := goal(models.GoalTypePeriodic, 1)

	got := Expand([]models.Goal{noRemaining, unknown, good, badTarget, noPeriod}, window(t, calendar.Today, "2024-03-15"), nil)

	require.Len(t, got, 1)
	assert.Equal(t, good.ID, got[0].GoalID)
	assert.Error(t, Validate(&badTarget))
	assert.ErrorIs(t, Validate(&unknown), models.ErrInvalidGoal)
}

func TestExpand_GoalMajorOrder(t *testing.T) {
	a := goal(models.GoalTypeToday, 1)
	b := goal(models.GoalTypeAlways, 1)

	got := Expand([]models.Goal{b, a}, window(t, calendar.Week, "2024-03-13"), nil)
	require.Len(t, got, 14)
	for i := 0; i < 7; i++ {
		assert.Equal(t, b.ID, got[i].GoalID)
		assert.Equal(t, a.ID, got[i+7].GoalID)
	}
}
