package engine

import (
	"context"
	"testing"
	"time"

	"github.com/arnold/steady-api/internal/calendar"
	"github.com/arnold/steady-api/internal/feed"
	"github.com/arnold/steady-api/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceNotifier struct {
	recorder
	online map[uuid.UUID]int
}

func (p *presenceNotifier) Connections(userID uuid.UUID) int {
	return p.online[userID]
}

func TestManager_OneSessionPerUser(t *testing.T) {
	f := newFixture(t, "2024-03-13")
	m := NewManager(f.store, nil, quietLogger(), Options{Now: f.clock.Now})
	defer m.Close()

	a := m.Session(f.user)
	b := m.Session(f.user)
	c := m.Session(uuid.New())

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, m.Len())
	assert.Zero(t, m.EvictIdle(f.clock.Now().Add(24*time.Hour)), "no TTL, no eviction")
}

func TestManager_EvictIdle(t *testing.T) {
	f := newFixture(t, "2024-03-13")
	ctx := context.Background()
	f.goal(t, models.GoalTypeToday, 1)
	f.goal(t, models.GoalTypeToday, 1)

	online, reordering, idle := uuid.New(), f.user, uuid.New()
	presence := &presenceNotifier{online: map[uuid.UUID]int{online: 1}}
	m := NewManager(f.store, presence, quietLogger(), Options{Now: f.clock.Now, IdleTTL: time.Hour})
	defer m.Close()

	m.Session(online)
	m.Session(idle)
	require.NoError(t, m.Session(reordering).MoveGoal(ctx, calendar.Today, 1, 0))

	now := f.clock.Now()
	assert.Zero(t, m.EvictIdle(now.Add(30*time.Minute)))
	assert.Equal(t, 1, m.EvictIdle(now.Add(2*time.Hour)))
	assert.Equal(t, 2, m.Len())

	assert.Equal(t, 0, subscribers(t, f, idle), "evicted session drops its feed subscriptions")
	assert.Equal(t, 2, subscribers(t, f, online))

	// A later request starts a fresh session.
	m.Session(idle)
	assert.Equal(t, 3, m.Len())
}

func subscribers(t *testing.T, f *fixture, userID uuid.UUID) int {
	t.Helper()
	return f.broker.Subscribers(feed.Goals, userID) + f.broker.Subscribers(feed.Completions, userID)
}
