// Package events is the append-only notification log written by lifecycle
// operations. Events are observable from outside but are not part of any
// raffle record.
package events

import (
	"context"
	"sync"

	"github.com/google/logger"
	"github.com/google/uuid"

	"raffle/internal/models"
)

// Event is one entry of the log.
type Event struct {
	ID       string           `json:"id"`
	Seq      uint64           `json:"seq"`
	Kind     models.EventKind `json:"kind"`
	RaffleID uint64           `json:"raffleId"`
	At       int64            `json:"at"`
	Payload  any              `json:"payload"`
}

// Filter narrows a List call. Zero values mean no restriction.
type Filter struct {
	RaffleID *uint64
	AfterSeq uint64
	Limit    int
}

// Log stores events in emission order.
type Log interface {
	Append(ctx context.Context, kind models.EventKind, raffleID uint64, at int64, payload any) (Event, error)
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Memory is an in-process Log that also fans events out to subscribers.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	subs   map[int]chan Event
	nextID int
}

// NewMemory returns an empty log.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]chan Event)}
}

// Append records an event with the next sequence number and pushes it to
// subscribers without blocking.
func (m *Memory) Append(ctx context.Context, kind models.EventKind, raffleID uint64, at int64, payload any) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := Event{
		ID:       uuid.NewString(),
		Seq:      uint64(len(m.events)) + 1,
		Kind:     kind,
		RaffleID: raffleID,
		At:       at,
		Payload:  payload,
	}
	m.events = append(m.events, ev)
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			logger.Warningf("events: subscriber %d is behind, dropped event %d", id, ev.Seq)
		}
	}
	return ev, nil
}

// List returns events in sequence order that match f.
func (m *Memory) List(ctx context.Context, f Filter) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, 0)
	for _, ev := range m.events {
		if ev.Seq <= f.AfterSeq {
			continue
		}
		if f.RaffleID != nil && ev.RaffleID != *f.RaffleID {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Subscribe delivers every event appended after the call. The returned
// function unsubscribes and closes the channel.
func (m *Memory) Subscribe(buffer int) (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan Event, buffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			close(ch)
			m.mu.Unlock()
		})
	}
}
