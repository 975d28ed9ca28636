// Package aggregator is the single path from goals to a rendered view: it
// filters goals by context relevance, expands them and merges completion
// state.
package aggregator

import (
	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/models"
	"github.com/arnold/steady-api/internal/recurrence"
	"github.com/arnold/steady-api/internal/tracker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var relevant = map[calendar.Context][]models.GoalType{
	calendar.Today:   {models.GoalTypeToday, models.GoalTypeAlways, models.GoalTypePeriodic, models.GoalTypeOnetime},
	calendar.Week:    {models.GoalTypeWeek, models.GoalTypeToday, models.GoalTypeAlways, models.GoalTypePeriodic, models.GoalTypeOnetime},
	calendar.Month:   {models.GoalTypeMonth, models.GoalTypeWeek, models.GoalTypeToday, models.GoalTypeAlways, models.GoalTypePeriodic, models.GoalTypeOnetime},
	calendar.Onetime: {models.GoalTypeOnetime},
}

// Relevant reports whether goals of type t show up in context c.
func Relevant(t models.GoalType, c calendar.Context) bool {
	for _, x := range relevant[c] {
		if x == t {
			return true
		}
	}
	return false
}

// HomeContext is the context a goal's summary flag is computed over.
func HomeContext(t models.GoalType) calendar.Context {
	switch t {
	case models.GoalTypeWeek:
		return calendar.Week
	case models.GoalTypeMonth:
		return calendar.Month
	}
	return calendar.Today
}

// Filter keeps the goals relevant to c, preserving order.
func Filter(goals []models.Goal, c calendar.Context) []models.Goal {
	out := make([]models.Goal, 0, len(goals))
	for _, g := range goals {
		if Relevant(g.GoalType, c) {
			out = append(out, g)
		}
	}
	return out
}

// LookupSpan covers the display dates and completion periods of every
// context for today, so one tracker query can serve them all.
func LookupSpan(today civil.Date) calendar.Span {
	return calendar.WeekOf(today).Union(calendar.MonthOf(today))
}

type View struct {
	Context        calendar.Context        `json:"context"`
	Dates          []civil.Date            `json:"dates"`
	Occurrences    []recurrence.Occurrence `json:"occurrences"`
	CompletedCount int                     `json:"completedCount"`
	Total          int                     `json:"total"`
}

type Summary struct {
	GoalID       uuid.UUID `json:"goalId"`
	Completed    bool      `json:"completed"`
	HasInstances bool      `json:"hasInstances"`
}

type Aggregator struct {
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Aggregator {
	return &Aggregator{log: log}
}

// View builds the ordered occurrence list of context c. goals must already
// be in display order.
func (a *Aggregator) View(goals []models.Goal, c calendar.Context, today civil.Date, completed tracker.Set) (View, error) {
	w, err := calendar.Resolve(c, today)
	if err != nil {
		return View{}, err
	}

	visible := Filter(goals, c)
	for i := range visible {
		if err := recurrence.Validate(&visible[i]); err != nil {
			a.log.WithError(err).WithField("goal_id", visible[i].ID).Warn("Skipping malformed goal")
		}
	}

	occ := recurrence.Expand(visible, w, completed)
	if occ == nil {
		occ = []recurrence.Occurrence{}
	}

	v := View{
		Context:     c,
		Dates:       w.Dates,
		Occurrences: occ,
		Total:       len(occ),
	}
	for _, o := range occ {
		if o.Completed {
			v.CompletedCount++
		}
	}
	return v, nil
}

// Summary reports whether every instance of g in its home context is done.
func (a *Aggregator) Summary(g models.Goal, today civil.Date, completed tracker.Set) Summary {
	s := Summary{GoalID: g.ID}

	w, err := calendar.Resolve(HomeContext(g.GoalType), today)
	if err != nil {
		return s
	}
	occ := recurrence.Expand([]models.Goal{g}, w, completed)
	if len(occ) == 0 {
		return s
	}

	s.HasInstances = true
	s.Completed = true
	for _, o := range occ {
		if !o.Completed {
			s.Completed = false
			break
		}
	}
	return s
}
