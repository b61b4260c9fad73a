// Package sequence issues raffle identifiers. Every implementation hands out
// the current counter value and advances it by one, so ids start at zero and
// never repeat or skip.
package sequence

import (
	"context"
	"errors"
	"sync"

	"raffle/internal/checked"
)

var (
	ErrAlreadyInitialised = errors.New("counter already initialised")
	ErrNotInitialised     = errors.New("counter not initialised")
)

// Allocator is the shared raffle id source.
type Allocator interface {
	// Init creates the counter at zero. It fails if the counter exists.
	Init(ctx context.Context) error
	// Next returns the current value and advances the counter.
	Next(ctx context.Context) (uint64, error)
}

// Memory is an Allocator for a single process.
type Memory struct {
	mu          sync.Mutex
	initialised bool
	value       uint64
}

// NewMemory returns an uninitialised in-process Allocator.
func NewMemory() *Memory {
	return &Memory{}
}

// Init starts the counter at zero. It succeeds once.
func (m *Memory) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialised {
		return ErrAlreadyInitialised
	}
	m.initialised = true
	m.value = 0
	return nil
}

// Next returns the current value and advances the counter by one.
func (m *Memory) Next(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialised {
		return 0, ErrNotInitialised
	}
	next, err := checked.Add(m.value, 1)
	if err != nil {
		return 0, err
	}
	id := m.value
	m.value = next
	return id, nil
}

// seed positions the counter, used to test the overflow guard.
func (m *Memory) seed(v uint64) {
	m.mu.Lock()
	m.initialised = true
	m.value = v
	m.mu.Unlock()
}
