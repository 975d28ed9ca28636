// Package engine composes the tracker, aggregator and order stager into one
// session per user and keeps it in step with the store's change feed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/arnold/steady-api/internal/aggregator"
	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/feed"
	"github.com/arnold/steady-api/internal/models"
	"github.com/arnold/steady-api/internal/ordering"
	"github.com/arnold/steady-api/internal/recurrence"
	"github.com/arnold/steady-api/internal/store"
	"github.com/arnold/steady-api/internal/tracker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

var (
	ErrPartialCommit   = errors.New("reorder commit partially failed")
	ErrUnknownInstance = errors.New("unknown instance")
)

type Options struct {
	// Location decides where a calendar day starts and ends.
	Location *time.Location
	// OrderWriteConcurrency bounds parallel order writes on commit.
	OrderWriteConcurrency int
	// IdleTTL is how long a Manager keeps an unused session; zero keeps
	// sessions until Close.
	IdleTTL time.Duration
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.OrderWriteConcurrency < 1 {
		o.OrderWriteConcurrency = 8
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ReorderView is the stager state plus the goals a move in Context indexes.
type ReorderView struct {
	State   ordering.State   `json:"state"`
	Context calendar.Context `json:"context"`
	Goals   []models.Goal    `json:"goals"`
}

type Session struct {
	userID   uuid.UUID
	store    store.GoalStore
	tracker  *tracker.Tracker
	agg      *aggregator.Aggregator
	notifier Notifier
	log      logrus.FieldLogger
	opts     Options

	mu          sync.Mutex
	stager      *ordering.Stager
	goalsLoaded bool

	stop func()
	done chan struct{}
}

func NewSession(userID uuid.UUID, st store.GoalStore, notifier Notifier, log logrus.FieldLogger, opts Options) *Session {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	log = log.WithField("user_id", userID)
	return &Session{
		userID:   userID,
		store:    st,
		tracker:  tracker.New(userID, st, log),
		agg:      aggregator.New(log),
		notifier: notifier,
		log:      log,
		opts:     opts.withDefaults(),
		stager:   ordering.NewStager(),
	}
}

// Today is the current calendar day in the configured location.
func (s *Session) Today() civil.Date {
	return calendar.DateOf(s.opts.Now(), s.opts.Location)
}

// ensureLoaded fills goals and completions if they are missing, stale or no
// longer cover today's contexts. Callers hold s.mu.
func (s *Session) ensureLoaded(ctx context.Context, today civil.Date) error {
	if !s.goalsLoaded {
		goals, err := s.store.ListGoals(ctx, s.userID)
		if err != nil {
			return fmt.Errorf("list goals: %w", err)
		}
		s.stager.Merge(goals)
		s.goalsLoaded = true
	}

	span := aggregator.LookupSpan(today)
	if !s.tracker.Covers(span) {
		if _, err := s.tracker.LoadCompleted(ctx, []civil.Date{span.From, span.To}); err != nil {
			return err
		}
	}
	return nil
}

// RefreshGoals re-lists the goals from the store before returning, so a
// request that follows a planning write sees it.
func (s *Session) RefreshGoals(ctx context.Context) error {
	goals, err := s.store.ListGoals(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("list goals: %w", err)
	}

	s.mu.Lock()
	s.stager.Merge(goals)
	s.goalsLoaded = true
	s.mu.Unlock()
	return nil
}

// GetView returns the ordered occurrences of context c for today.
func (s *Session) GetView(ctx context.Context, c calendar.Context) (aggregator.View, error) {
	if _, err := calendar.ParseContext(string(c)); err != nil {
		return aggregator.View{}, err
	}
	today := s.Today()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, today); err != nil {
		return aggregator.View{}, err
	}
	return s.agg.View(s.stager.Goals(), c, today, s.tracker.Snapshot())
}

// ToggleInstance marks the occurrence identified by key done or not done.
// For week and month goals key names the period anchor; the record is written
// on today's date when today falls inside the period. Untoggling such a goal
// removes every record of that index within the period.
func (s *Session) ToggleInstance(ctx context.Context, key tracker.Key, completed bool) error {
	today := s.Today()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, today); err != nil {
		return err
	}

	goal, ok := s.findGoal(key.GoalID)
	if !ok {
		return fmt.Errorf("%w: goal %s", ErrUnknownInstance, key.GoalID)
	}
	if err := checkInstance(goal, key, today); err != nil {
		return err
	}

	if err := s.toggle(ctx, goal, key, completed, today); err != nil {
		return err
	}
	s.writeSummary(ctx, goal, today)
	return nil
}

func (s *Session) toggle(ctx context.Context, goal models.Goal, key tracker.Key, completed bool, today civil.Date) error {
	if goal.GoalType != models.GoalTypeWeek && goal.GoalType != models.GoalTypeMonth {
		return s.tracker.Toggle(ctx, key, completed)
	}

	period := recurrence.Period(goal.GoalType, key.Date)
	done := s.tracker.Snapshot()
	if completed {
		if done.AnyIn(goal.ID, key.Index, period) {
			return nil
		}
		mark := period.From
		if period.Contains(today) {
			mark = today
		}
		return s.tracker.Toggle(ctx, tracker.Key{GoalID: goal.ID, Date: mark, Index: key.Index}, true)
	}

	keys := done.KeysIn(goal.ID, key.Index, period)
	if len(keys) == 0 {
		keys = []tracker.Key{{GoalID: goal.ID, Date: period.From, Index: key.Index}}
	}
	for _, k := range keys {
		if err := s.tracker.Toggle(ctx, k, false); err != nil {
			return err
		}
	}
	return nil
}

// checkInstance rejects keys the goal could never produce for today's
// contexts. Week and month goals only take the anchor of the current period,
// which keeps the whole period inside the tracker's loaded span.
func checkInstance(goal models.Goal, key tracker.Key, today civil.Date) error {
	if key.Index < 0 || key.Index >= goal.Remaining {
		return fmt.Errorf("%w: index %d of goal %s", ErrUnknownInstance, key.Index, goal.ID)
	}
	if err := recurrence.Validate(&goal); err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownInstance, err)
	}
	if !aggregator.LookupSpan(today).Contains(key.Date) {
		return fmt.Errorf("%w: %s is outside the current week and month", ErrUnknownInstance, key.Date)
	}
	switch goal.GoalType {
	case models.GoalTypeOnetime:
		if target, _ := goal.Target(); target != key.Date {
			return fmt.Errorf("%w: goal %s is due %s", ErrUnknownInstance, goal.ID, target)
		}
	case models.GoalTypePeriodic:
		if key.Date.Day != recurrence.PeriodicDay(*goal.PeriodicType, key.Date) {
			return fmt.Errorf("%w: goal %s is not due %s", ErrUnknownInstance, goal.ID, key.Date)
		}
	case models.GoalTypeWeek, models.GoalTypeMonth:
		if anchor := recurrence.Period(goal.GoalType, today).From; key.Date != anchor {
			return fmt.Errorf("%w: goal %s is anchored at %s", ErrUnknownInstance, goal.ID, anchor)
		}
	}
	return nil
}

// writeSummary keeps the goal's completed flag in step with its home
// context. Failures are logged; the flag is a convenience copy.
func (s *Session) writeSummary(ctx context.Context, goal models.Goal, today civil.Date) {
	sum := s.agg.Summary(goal, today, s.tracker.Snapshot())
	if !sum.HasInstances || sum.Completed == goal.Completed {
		return
	}
	if err := s.store.UpdateGoal(ctx, s.userID, goal.ID, map[string]any{"completed": sum.Completed}); err != nil {
		s.log.WithError(err).WithField("goal_id", goal.ID).Warn("Failed to write goal summary")
		return
	}
	goal.Completed = sum.Completed
	s.stager.Update(goal)
}

func (s *Session) findGoal(id uuid.UUID) (models.Goal, bool) {
	for _, g := range s.stager.Goals() {
		if g.ID == id {
			return g, true
		}
	}
	return models.Goal{}, false
}

// Goals returns the goals in display order, staged order while a reorder is
// in progress.
func (s *Session) Goals(ctx context.Context) ([]models.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, s.Today()); err != nil {
		return nil, err
	}
	return s.stager.Goals(), nil
}

// Summaries reports every goal's completion over its home context.
func (s *Session) Summaries(ctx context.Context) ([]aggregator.Summary, error) {
	today := s.Today()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, today); err != nil {
		return nil, err
	}
	done := s.tracker.Snapshot()
	goals := s.stager.Goals()
	out := make([]aggregator.Summary, 0, len(goals))
	for _, g := range goals {
		out = append(out, s.agg.Summary(g, today, done))
	}
	return out, nil
}

func (s *Session) ReorderState() ordering.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stager.State()
}

// Reorder returns the stager state and the goals visible in c.
func (s *Session) Reorder(ctx context.Context, c calendar.Context) (ReorderView, error) {
	if _, err := calendar.ParseContext(string(c)); err != nil {
		return ReorderView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, s.Today()); err != nil {
		return ReorderView{}, err
	}
	return ReorderView{State: s.stager.State(), Context: c, Goals: s.stager.Visible(c)}, nil
}

func (s *Session) BeginReorder(ctx context.Context, c calendar.Context) error {
	if _, err := calendar.ParseContext(string(c)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, s.Today()); err != nil {
		return err
	}
	s.stager.Begin()
	return nil
}

func (s *Session) MoveGoal(ctx context.Context, c calendar.Context, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(ctx, s.Today()); err != nil {
		return err
	}
	return s.stager.Move(c, from, to)
}

func (s *Session) CancelReorder() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stager.Cancel()
}

// CommitReorder persists the staged order. Writes run concurrently and are
// not rolled back: goals whose write failed keep their old index and the
// returned error wraps ErrPartialCommit with every failure.
func (s *Session) CommitReorder(ctx context.Context) error {
	s.mu.Lock()
	goals, err := s.stager.Commit()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	var (
		g    errgroup.Group
		emu  sync.Mutex
		errs error
	)
	g.SetLimit(s.opts.OrderWriteConcurrency)
	for _, goal := range goals {
		goal := goal
		g.Go(func() error {
			if err := s.store.UpdateGoalOrder(ctx, s.userID, goal.ID, goal.OrderIndex); err != nil {
				emu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("goal %s: %w", goal.ID, err))
				emu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.notifier.Notify(s.userID, Event{Type: EventOrderCommitted, UserID: s.userID})

	if errs != nil {
		n := len(multierr.Errors(errs))
		s.log.WithError(errs).WithField("failed", n).Error("Reorder commit partially failed")
		return fmt.Errorf("%w: %d of %d writes: %w", ErrPartialCommit, n, len(goals), errs)
	}
	return nil
}

// Start subscribes to the change feed and runs the reconciliation loop until
// Close.
func (s *Session) Start() {
	goalsCh, cancelGoals := s.store.Subscribe(feed.Goals, s.userID)
	complCh, cancelCompl := s.store.Subscribe(feed.Completions, s.userID)

	ctx, cancel := context.WithCancel(context.Background())
	s.done = make(chan struct{})
	s.stop = func() {
		cancel()
		cancelGoals()
		cancelCompl()
	}
	go s.run(ctx, goalsCh, complCh)
}

func (s *Session) Close() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
}

func (s *Session) run(ctx context.Context, goalsCh, complCh <-chan feed.ChangeEvent) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-goalsCh:
			if !ok {
				return
			}
			s.reloadGoals(ctx, ev)
		case ev, ok := <-complCh:
			if !ok {
				return
			}
			s.reloadCompletions(ctx, ev)
		}
	}
}

func (s *Session) reloadGoals(ctx context.Context, ev feed.ChangeEvent) {
	if err := s.RefreshGoals(ctx); err != nil {
		if ctx.Err() == nil {
			s.log.WithError(err).Warn("Failed to reload goals")
		}
		return
	}
	s.notifier.Notify(s.userID, Event{Type: EventGoalsChanged, UserID: s.userID, Data: ev})
}

func (s *Session) reloadCompletions(ctx context.Context, ev feed.ChangeEvent) {
	if err := s.tracker.Reload(ctx); err != nil {
		if ctx.Err() == nil {
			s.log.WithError(err).Warn("Failed to reload completions")
		}
		return
	}
	s.notifier.Notify(s.userID, Event{Type: EventCompletionsChanged, UserID: s.userID, Data: ev})
}
