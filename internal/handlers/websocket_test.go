package handlers

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arnold/steady-api/internal/engine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu        sync.Mutex
	msgs      [][]byte
	deadlines int
	err       error
	block     chan struct{}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines++
	return nil
}

func (f *fakeConn) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.msgs...)
}

func open(t *testing.T, hub *Hub, conn messageWriter, userID uuid.UUID) *connection {
	t.Helper()
	c := newConnection(conn, userID)
	hub.register(c)
	go c.writeLoop(hub.log)
	t.Cleanup(func() { hub.unregister(c) })
	return c
}

func TestHub_NotifyReachesEveryDeviceOfUser(t *testing.T) {
	hub := NewHub(quietLogger())
	user, other := uuid.New(), uuid.New()

	phone := &fakeConn{}
	laptop := &fakeConn{}
	broken := &fakeConn{err: errors.New("closed")}
	stranger := &fakeConn{}

	open(t, hub, phone, user)
	open(t, hub, laptop, user)
	open(t, hub, broken, user)
	open(t, hub, stranger, other)
	assert.Equal(t, 3, hub.Connections(user))

	hub.Notify(user, engine.Event{Type: engine.EventCompletionsChanged, UserID: user})

	require.Eventually(t, func() bool {
		return len(phone.received()) == 1 && len(laptop.received()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, stranger.received())

	var got engine.Event
	require.NoError(t, json.Unmarshal(phone.received()[0], &got))
	assert.Equal(t, engine.EventCompletionsChanged, got.Type)
	assert.Equal(t, user, got.UserID)

	phone.mu.Lock()
	assert.Equal(t, 1, phone.deadlines)
	phone.mu.Unlock()
}

func TestHub_StalledClientDoesNotBlockNotify(t *testing.T) {
	hub := NewHub(quietLogger())
	user := uuid.New()

	stalled := &fakeConn{block: make(chan struct{})}
	healthy := &fakeConn{}
	open(t, hub, stalled, user)
	open(t, hub, healthy, user)

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*3; i++ {
			hub.Notify(user, engine.Event{Type: engine.EventGoalsChanged, UserID: user})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a stalled connection")
	}
	close(stalled.block)

	require.Eventually(t, func() bool {
		return len(healthy.received()) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_Unregister(t *testing.T) {
	hub := NewHub(quietLogger())
	user := uuid.New()
	c := newConnection(&fakeConn{}, user)

	hub.register(c)
	hub.unregister(c)
	assert.Equal(t, 0, hub.Connections(user))
	assert.False(t, c.enqueue([]byte("x")))

	// No connections: nothing to do, nothing to fail.
	hub.Notify(user, engine.Event{Type: engine.EventGoalsChanged, UserID: user})
}
