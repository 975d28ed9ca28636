package engine

import "github.com/google/uuid"

type EventType string

const (
	EventCompletionsChanged EventType = "completions_changed"
	EventGoalsChanged       EventType = "goals_changed"
	EventOrderCommitted     EventType = "order_committed"
)

// Event is pushed to every listener of a user after their state changed.
type Event struct {
	Type   EventType `json:"type"`
	UserID uuid.UUID `json:"userId"`
	Data   any       `json:"data,omitempty"`
}

// Notifier delivers events to whatever is listening for a user, such as
// websocket connections.
type Notifier interface {
	Notify(userID uuid.UUID, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(uuid.UUID, Event) {}
