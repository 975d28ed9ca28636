// Package recurrence turns goal definitions into dated occurrences for a
// resolved calendar window.
package recurrence

import (
	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/models"
	"github.com/arnold/steady-api/internal/tracker"
	"github.com/google/uuid"
)

// Occurrence is one countable, completable unit of a goal. It is derived on
// every read and never stored.
type Occurrence struct {
	GoalID    uuid.UUID       `json:"goalId"`
	Text      string          `json:"text"`
	GoalType  models.GoalType `json:"goalType"`
	Date      civil.Date      `json:"date"`
	Index     int             `json:"index"`
	Completed bool            `json:"completed"`

	// PeriodStart..PeriodEnd is the range searched for a matching record.
	// For per-day goals both equal Date.
	PeriodStart civil.Date `json:"periodStart"`
	PeriodEnd   civil.Date `json:"periodEnd"`
}

func (o Occurrence) Key() tracker.Key {
	return tracker.Key{GoalID: o.GoalID, Date: o.Date, Index: o.Index}
}

func (o Occurrence) Period() calendar.Span {
	return calendar.Span{From: o.PeriodStart, To: o.PeriodEnd}
}

// Validate reports why a goal cannot be expanded, or nil.
func Validate(g *models.Goal) error {
	return g.Validate()
}

// Period returns the completion span of goal type t for a given day: the
// Monday..Sunday week for week goals, the calendar month for month goals and
// the day itself otherwise.
func Period(t models.GoalType, d civil.Date) calendar.Span {
	switch t {
	case models.GoalTypeWeek:
		return calendar.WeekOf(d)
	case models.GoalTypeMonth:
		return calendar.MonthOf(d)
	}
	return calendar.Span{From: d, To: d}
}

// PeriodicDay returns the day of d's month on which p falls.
func PeriodicDay(p models.PeriodicType, d civil.Date) int {
	switch p {
	case models.PeriodicStartOfMonth:
		return 1
	case models.PeriodicMidMonth:
		return 15
	case models.PeriodicEndOfMonth:
		return calendar.DaysInMonth(d)
	}
	return 0
}

// Expand produces the occurrences of goals within w. Output follows the order
// of goals, then date, then index. Goals that fail Validate are skipped.
func Expand(goals []models.Goal, w calendar.Window, completed tracker.Set) []Occurrence {
	var out []Occurrence
	for i := range goals {
		out = append(out, expandGoal(&goals[i], w, completed)...)
	}
	return out
}

func expandGoal(g *models.Goal, w calendar.Window, completed tracker.Set) []Occurrence {
	if Validate(g) != nil {
		return nil
	}

	switch g.GoalType {
	case models.GoalTypeOnetime:
		target, _ := g.Target()
		if !w.Contains(target) {
			return nil
		}
		return perDay(g, target, completed)

	case models.GoalTypeToday, models.GoalTypeAlways:
		var out []Occurrence
		for _, d := range w.Dates {
			out = append(out, perDay(g, d, completed)...)
		}
		return out

	case models.GoalTypePeriodic:
		var out []Occurrence
		for _, d := range w.Dates {
			if d.Day == PeriodicDay(*g.PeriodicType, d) {
				out = append(out, perDay(g, d, completed)...)
			}
		}
		return out

	case models.GoalTypeWeek, models.GoalTypeMonth:
		return perPeriod(g, Period(g.GoalType, w.Today), completed)
	}
	return nil
}

func perDay(g *models.Goal, d civil.Date, completed tracker.Set) []Occurrence {
	out := make([]Occurrence, 0, g.Remaining)
	for i := 0; i < g.Remaining; i++ {
		k := tracker.Key{GoalID: g.ID, Date: d, Index: i}
		out = append(out, Occurrence{
			GoalID:      g.ID,
			Text:        g.Text,
			GoalType:    g.GoalType,
			Date:        d,
			Index:       i,
			Completed:   completed.Has(k),
			PeriodStart: d,
			PeriodEnd:   d,
		})
	}
	return out
}

// perPeriod anchors every instance at the period start and treats it as done
// when any day of the period carries a record for the same index.
func perPeriod(g *models.Goal, period calendar.Span, completed tracker.Set) []Occurrence {
	out := make([]Occurrence, 0, g.Remaining)
	for i := 0; i < g.Remaining; i++ {
		out = append(out, Occurrence{
			GoalID:      g.ID,
			Text:        g.Text,
			GoalType:    g.GoalType,
			Date:        period.From,
			Index:       i,
			Completed:   completed.AnyIn(g.ID, i, period),
			PeriodStart: period.From,
			PeriodEnd:   period.To,
		})
	}
	return out
}
