// Package calendar resolves view contexts (today, week, month, onetime) into
// concrete lists of calendar days. All arithmetic is on civil dates so that
// day boundaries never depend on the server clock's time zone.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

type Context string

const (
	Today   Context = "today"
	Week    Context = "week"
	Month   Context = "month"
	Onetime Context = "onetime"
)

var ErrUnknownContext = errors.New("unknown context")

// Contexts lists every context in ascending period length.
var Contexts = []Context{Today, Week, Month, Onetime}

func ParseContext(s string) (Context, error) {
	switch c := Context(s); c {
	case Today, Week, Month, Onetime:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContext, s)
}

// Span is an inclusive range of days.
type Span struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

func (s Span) Contains(d civil.Date) bool {
	return !d.Before(s.From) && !d.After(s.To)
}

// Dates lists every day of the span in order.
func (s Span) Dates() []civil.Date {
	if s.To.Before(s.From) {
		return nil
	}
	out := make([]civil.Date, 0, s.To.DaysSince(s.From)+1)
	for d := s.From; !d.After(s.To); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Union returns the smallest span covering both s and o.
func (s Span) Union(o Span) Span {
	out := s
	if o.From.Before(out.From) {
		out.From = o.From
	}
	if o.To.After(out.To) {
		out.To = o.To
	}
	return out
}

// Window is a context resolved against a particular "today".
type Window struct {
	Context Context
	Today   civil.Date
	Dates   []civil.Date
}

// Resolve turns a context into its ordered date list:
// today and onetime yield [today], week yields Monday..Sunday of the current
// week and month yields today..last day of the current month.
func Resolve(c Context, today civil.Date) (Window, error) {
	w := Window{Context: c, Today: today}
	switch c {
	case Today, Onetime:
		w.Dates = []civil.Date{today}
	case Week:
		w.Dates = WeekOf(today).Dates()
	case Month:
		w.Dates = Span{From: today, To: MonthOf(today).To}.Dates()
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownContext, string(c))
	}
	return w, nil
}

// Contains reports whether d is one of the window's days.
func (w Window) Contains(d civil.Date) bool {
	for _, x := range w.Dates {
		if x == d {
			return true
		}
	}
	return false
}

// Span returns the first..last day of the window.
func (w Window) Span() Span {
	if len(w.Dates) == 0 {
		return Span{From: w.Today, To: w.Today}
	}
	return Span{From: w.Dates[0], To: w.Dates[len(w.Dates)-1]}
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(t.In(loc))
}

func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// WeekOf returns the Monday..Sunday week containing d.
func WeekOf(d civil.Date) Span {
	offset := (int(Weekday(d)) + 6) % 7
	start := d.AddDays(-offset)
	return Span{From: start, To: start.AddDays(6)}
}

// MonthOf returns the first..last day of d's month.
func MonthOf(d civil.Date) Span {
	start := civil.Date{Year: d.Year, Month: d.Month, Day: 1}
	return Span{From: start, To: start.AddDays(DaysInMonth(d) - 1)}
}

func DaysInMonth(d civil.Date) int {
	return time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
