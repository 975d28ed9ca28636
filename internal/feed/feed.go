// Package feed is the in-process change feed behind the goal store. Every
// successful write publishes a ChangeEvent; sessions subscribe per table and
// user and react by reloading.
package feed

import (
	"sync"

	"github.com/google/uuid"
)

type Table string

const (
	Goals       Table = "goals"
	Completions Table = "completions"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type ChangeEvent struct {
	Table    Table     `json:"table"`
	Op       Op        `json:"op"`
	UserID   uuid.UUID `json:"userId"`
	RecordID uuid.UUID `json:"recordId"`
}

type topic struct {
	table  Table
	userID uuid.UUID
}

type subscription struct {
	ch   chan ChangeEvent
	once sync.Once
}

// Broker fans change events out to subscribers.
type Broker struct {
	mu     sync.RWMutex
	topics map[topic]map[*subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{topics: make(map[topic]map[*subscription]struct{})}
}

// Subscribe returns a channel of events for one table and user plus a cancel
// func that closes it. The channel buffers a single event: while one is
// pending, further events are dropped since the pending one already triggers
// a full reload.
func (b *Broker) Subscribe(table Table, userID uuid.UUID) (<-chan ChangeEvent, func()) {
	key := topic{table: table, userID: userID}
	sub := &subscription{ch: make(chan ChangeEvent, 1)}

	b.mu.Lock()
	if b.topics[key] == nil {
		b.topics[key] = make(map[*subscription]struct{})
	}
	b.topics[key][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[key]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(b.topics, key)
				}
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish never blocks.
func (b *Broker) Publish(ev ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic{table: ev.Table, userID: ev.UserID}] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Subscribers reports how many live subscriptions a topic has.
func (b *Broker) Subscribers(table Table, userID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic{table: table, userID: userID}])
}
