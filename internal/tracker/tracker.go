// Package tracker keeps the per-session set of completed occurrences.
//
// The set is loaded from the store with one batched query per date range and
// mutated optimistically on toggles. A failed write never reverts the local
// flip by hand: the tracker reloads from the store instead, since a remote
// device may have changed the same records meanwhile.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrToggleFailed = errors.New("toggle failed")

// Key identifies one occurrence: goal, calendar day and per-day index.
type Key struct {
	GoalID uuid.UUID
	Date   civil.Date
	Index  int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.GoalID, k.Date, k.Index)
}

// Set is a set of completed occurrence keys.
type Set map[Key]struct{}

func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// AnyIn reports whether (goalID, index) is completed on any day of span.
func (s Set) AnyIn(goalID uuid.UUID, index int, span calendar.Span) bool {
	for k := range s {
		if k.GoalID == goalID && k.Index == index && span.Contains(k.Date) {
			return true
		}
	}
	return false
}

// KeysIn lists the completed keys for (goalID, index) within span.
func (s Set) KeysIn(goalID uuid.UUID, index int, span calendar.Span) []Key {
	var out []Key
	for k := range s {
		if k.GoalID == goalID && k.Index == index && span.Contains(k.Date) {
			out = append(out, k)
		}
	}
	return out
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Store is the slice of the goal store the tracker writes through.
type Store interface {
	ListCompletions(ctx context.Context, userID uuid.UUID, from, to civil.Date) ([]models.Completion, error)
	InsertCompletion(ctx context.Context, userID, goalID uuid.UUID, date civil.Date, index int) error
	DeleteCompletion(ctx context.Context, userID, goalID uuid.UUID, date civil.Date, index int) error
}

type Tracker struct {
	userID uuid.UUID
	store  Store
	log    logrus.FieldLogger

	mu     sync.RWMutex
	done   Set
	span   calendar.Span
	loaded bool
	stale  bool
}

func New(userID uuid.UUID, store Store, log logrus.FieldLogger) *Tracker {
	return &Tracker{
		userID: userID,
		store:  store,
		log:    log,
		done:   make(Set),
	}
}

// LoadCompleted reads the records covering dates in a single query and
// replaces the tracked set with the result.
func (t *Tracker) LoadCompleted(ctx context.Context, dates []civil.Date) (Set, error) {
	if len(dates) == 0 {
		return make(Set), nil
	}

	span := calendar.Span{From: dates[0], To: dates[0]}
	for _, d := range dates[1:] {
		span = span.Union(calendar.Span{From: d, To: d})
	}

	records, err := t.store.ListCompletions(ctx, t.userID, span.From, span.To)
	if err != nil {
		t.mu.Lock()
		t.stale = true
		t.mu.Unlock()
		return nil, fmt.Errorf("load completions %s..%s: %w", span.From, span.To, err)
	}

	set := make(Set, len(records))
	for _, r := range records {
		d, err := civil.ParseDate(r.CompletionDate)
		if err != nil {
			t.log.WithError(err).WithField("completion_id", r.ID).Warn("Skipping completion with malformed date")
			continue
		}
		set[Key{GoalID: r.GoalID, Date: d, Index: r.InstanceIndex}] = struct{}{}
	}

	t.mu.Lock()
	t.done = set
	t.span = span
	t.loaded = true
	t.stale = false
	t.mu.Unlock()

	return set.Clone(), nil
}

// Reload repeats the last load. It is a no-op before the first load.
func (t *Tracker) Reload(ctx context.Context) error {
	t.mu.RLock()
	span, loaded := t.span, t.loaded
	t.mu.RUnlock()
	if !loaded {
		return nil
	}
	_, err := t.LoadCompleted(ctx, []civil.Date{span.From, span.To})
	return err
}

// Covers reports whether the loaded set is fresh and spans s.
func (t *Tracker) Covers(s calendar.Span) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded && !t.stale && t.span.Contains(s.From) && t.span.Contains(s.To)
}

func (t *Tracker) Snapshot() Set {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done.Clone()
}

func (t *Tracker) Has(k Key) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done.Has(k)
}

func (t *Tracker) apply(k Key, completed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if completed {
		t.done[k] = struct{}{}
	} else {
		delete(t.done, k)
	}
}

// Toggle flips k locally, then writes it through. Calling it twice with the
// same arguments leaves the same state as calling it once.
func (t *Tracker) Toggle(ctx context.Context, k Key, completed bool) error {
	t.apply(k, completed)

	var err error
	if completed {
		err = t.store.InsertCompletion(ctx, t.userID, k.GoalID, k.Date, k.Index)
	} else {
		err = t.store.DeleteCompletion(ctx, t.userID, k.GoalID, k.Date, k.Index)
	}
	if err == nil {
		return nil
	}

	t.log.WithError(err).WithFields(logrus.Fields{
		"key":       k.String(),
		"completed": completed,
	}).Warn("Completion write failed, resyncing from store")

	if rerr := t.Reload(ctx); rerr != nil {
		t.log.WithError(rerr).Error("Resync after failed toggle failed")
	}
	return fmt.Errorf("%w: %s: %w", ErrToggleFailed, k, err)
}
