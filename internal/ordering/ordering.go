// Package ordering stages manual goal reorders in memory until they are
// committed or cancelled.
package ordering

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arnold/steady-api/internal/aggregator"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotDirty        = errors.New("no reorder in progress")
	ErrInvalidPosition = errors.New("invalid position")
)

type State string

const (
	Clean State = "clean"
	Dirty State = "dirty"
)

// SortGoals returns goals in display order: orderIndex ascending, ties broken
// by creation time and then id.
func SortGoals(goals []models.Goal) []models.Goal {
	out := make([]models.Goal, len(goals))
	copy(out, goals)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

// Stager is the Clean/Dirty order state machine of one session. It is not
// safe for concurrent use; the session serializes access.
type Stager struct {
	state  State
	latest []models.Goal
	staged []uuid.UUID
}

func NewStager() *Stager {
	return &Stager{state: Clean}
}

func (s *Stager) State() State {
	return s.state
}

// Goals returns the displayed order: stored order when clean, the staged
// order when dirty.
func (s *Stager) Goals() []models.Goal {
	sorted := SortGoals(s.latest)
	if s.state == Clean {
		return sorted
	}
	return arrange(sorted, s.staged)
}

// Visible returns the displayed goals that show up in context c. Move
// positions index into this list.
func (s *Stager) Visible(c calendar.Context) []models.Goal {
	return aggregator.Filter(s.Goals(), c)
}

// Merge installs a fresh goal list from the store. While dirty, content
// changes, additions and deletions apply at once but a remote order change is
// deferred until the stage is resolved.
func (s *Stager) Merge(remote []models.Goal) {
	s.latest = SortGoals(remote)
	if s.state == Clean {
		return
	}

	s.staged = reconcile(s.staged, s.latest)
}

// Update replaces the stored copy of g, leaving order state alone.
func (s *Stager) Update(g models.Goal) {
	for i := range s.latest {
		if s.latest[i].ID == g.ID {
			s.latest[i] = g
			return
		}
	}
}

// Begin snapshots the current order as the staged order. Calling it while
// dirty does nothing.
func (s *Stager) Begin() {
	if s.state == Dirty {
		return
	}
	s.staged = ids(SortGoals(s.latest))
	s.state = Dirty
}

// Move relocates the goal at position from to position to, both counted
// among the goals visible in context c. Goals not visible in c keep their
// relative order after the visible ones.
func (s *Stager) Move(c calendar.Context, from, to int) error {
	if _, err := calendar.ParseContext(string(c)); err != nil {
		return err
	}
	visible := s.Visible(c)
	if from < 0 || from >= len(visible) || to < 0 || to >= len(visible) {
		return fmt.Errorf("%w: move %d -> %d among %d goals", ErrInvalidPosition, from, to, len(visible))
	}
	s.Begin()

	order := ids(visible)
	moved := order[from]
	order = append(order[:from], order[from+1:]...)
	order = append(order[:to], append([]uuid.UUID{moved}, order[to:]...)...)

	inView := make(map[uuid.UUID]bool, len(order))
	for _, id := range order {
		inView[id] = true
	}
	for _, id := range s.staged {
		if !inView[id] {
			order = append(order, id)
		}
	}
	s.staged = order
	return nil
}

// Commit ends the stage and returns every goal with OrderIndex set to its
// staged position. The caller persists them.
func (s *Stager) Commit() ([]models.Goal, error) {
	if s.state != Dirty {
		return nil, ErrNotDirty
	}

	out := arrange(SortGoals(s.latest), s.staged)
	for i := range out {
		out[i].OrderIndex = i
	}
	s.latest = append([]models.Goal(nil), out...)
	s.reset()
	return out, nil
}

// Cancel drops the stage without writing. Stored order indices were never
// touched, so the order shown afterwards is the stored one: the snapshot taken
// at Begin, or a newer remote order that was deferred while dirty.
func (s *Stager) Cancel() error {
	if s.state != Dirty {
		return ErrNotDirty
	}
	s.reset()
	return nil
}

func (s *Stager) reset() {
	s.state = Clean
	s.staged = nil
}

func ids(goals []models.Goal) []uuid.UUID {
	out := make([]uuid.UUID, len(goals))
	for i, g := range goals {
		out[i] = g.ID
	}
	return out
}

// arrange orders goals by the given id sequence; goals missing from it go
// last in their current order.
func arrange(goals []models.Goal, order []uuid.UUID) []models.Goal {
	byID := make(map[uuid.UUID]models.Goal, len(goals))
	for _, g := range goals {
		byID[g.ID] = g
	}
	out := make([]models.Goal, 0, len(goals))
	placed := make(map[uuid.UUID]bool, len(goals))
	for _, id := range order {
		if g, ok := byID[id]; ok && !placed[id] {
			out = append(out, g)
			placed[id] = true
		}
	}
	for _, g := range goals {
		if !placed[g.ID] {
			out = append(out, g)
		}
	}
	return out
}

// reconcile drops ids no longer present and appends new goals.
func reconcile(order []uuid.UUID, goals []models.Goal) []uuid.UUID {
	return ids(arrange(goals, order))
}
