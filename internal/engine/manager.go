package engine

import (
	"sync"
	"time"

	"github.com/arnold/steady-api/internal/ordering"
	"github.com/arnold/steady-api/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Presence reports whether a user still has live listeners, such as open
// websocket connections.
type Presence interface {
	Connections(userID uuid.UUID) int
}

type managed struct {
	session  *Session
	lastUsed time.Time
}

// Manager hands out one running session per user and closes sessions that
// have been idle for longer than Options.IdleTTL.
type Manager struct {
	store    store.GoalStore
	notifier Notifier
	presence Presence
	log      logrus.FieldLogger
	opts     Options

	mu       sync.Mutex
	sessions map[uuid.UUID]*managed
	closed   bool

	stop chan struct{}
	done chan struct{}
}

func NewManager(st store.GoalStore, notifier Notifier, log logrus.FieldLogger, opts Options) *Manager {
	m := &Manager{
		store:    st,
		notifier: notifier,
		log:      log,
		opts:     opts.withDefaults(),
		sessions: make(map[uuid.UUID]*managed),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if p, ok := notifier.(Presence); ok {
		m.presence = p
	}
	if m.opts.IdleTTL > 0 {
		go m.janitor()
	} else {
		close(m.done)
	}
	return m
}

// Session returns the user's session, starting it on first use.
func (m *Manager) Session(userID uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	if e, ok := m.sessions[userID]; ok {
		e.lastUsed = now
		return e.session
	}
	s := NewSession(userID, m.store, m.notifier, m.log, m.opts)
	if !m.closed {
		s.Start()
	}
	m.sessions[userID] = &managed{session: s, lastUsed: now}
	m.log.WithField("user_id", userID).Debug("Session started")
	return s
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle closes sessions unused since before now-IdleTTL. Sessions with a
// reorder in progress or with live listeners are kept.
func (m *Manager) EvictIdle(now time.Time) int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}

	m.mu.Lock()
	var idle []*Session
	for userID, e := range m.sessions {
		if now.Sub(e.lastUsed) < m.opts.IdleTTL {
			continue
		}
		if m.presence != nil && m.presence.Connections(userID) > 0 {
			continue
		}
		if e.session.ReorderState() != ordering.Clean {
			continue
		}
		delete(m.sessions, userID)
		idle = append(idle, e.session)
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
		m.log.WithField("user_id", s.userID).Debug("Idle session closed")
	}
	return len(idle)
}

func (m *Manager) janitor() {
	defer close(m.done)
	ticker := time.NewTicker(m.opts.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.EvictIdle(m.opts.Now())
		}
	}
}

// Close stops the janitor and every session's reconciliation loop.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*managed)
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	<-m.done
	for _, e := range sessions {
		e.session.Close()
	}
}
