// Package store persists raffle records. Update is the only way to mutate a
// stored record: it serialises callers per raffle and commits the callback's
// changes only when the callback returns nil.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"raffle/internal/models"
)

var (
	ErrNotFound = errors.New("raffle not found")
	ErrExists   = errors.New("raffle already exists")
)

type ListParams struct {
	Status         *models.RaffleStatus
	DeadlineBefore *int64
	Limit          int
	Offset         int
}

type Store interface {
	Create(ctx context.Context, r *models.Raffle) error
	Get(ctx context.Context, id uint64) (*models.Raffle, error)
	List(ctx context.Context, params ListParams) ([]*models.Raffle, error)
	Update(ctx context.Context, id uint64, fn func(r *models.Raffle) error) (*models.Raffle, error)
}

type entry struct {
	mu     sync.Mutex
	raffle *models.Raffle
}

// Memory keeps records in process. Each record has its own lock so work on
// different raffles does not contend.
type Memory struct {
	mu      sync.RWMutex
	raffles map[uint64]*entry
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{raffles: make(map[uint64]*entry)}
}

// Create stores a copy of r. ErrExists if the id is taken.
func (m *Memory) Create(ctx context.Context, r *models.Raffle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.raffles[r.ID]; exists {
		return ErrExists
	}
	m.raffles[r.ID] = &entry{raffle: r.Clone()}
	return nil
}

func (m *Memory) lookup(id uint64) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.raffles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Get returns a copy of the raffle.
func (m *Memory) Get(ctx context.Context, id uint64) (*models.Raffle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.raffle.Clone(), nil
}

// List returns copies of matching raffles ordered by id.
func (m *Memory) List(ctx context.Context, params ListParams) ([]*models.Raffle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.raffles))
	for _, e := range m.raffles {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]*models.Raffle, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		r := e.raffle.Clone()
		e.mu.Unlock()
		if params.Status != nil && r.Status != *params.Status {
			continue
		}
		if params.DeadlineBefore != nil && r.Deadline >= *params.DeadlineBefore {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return []*models.Raffle{}, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

// Update runs fn on a copy under the raffle's lock and keeps the copy only if
// fn returns nil.
func (m *Memory) Update(ctx context.Context, id uint64, fn func(r *models.Raffle) error) (*models.Raffle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	draft := e.raffle.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.ID = id
	e.raffle = draft
	return draft.Clone(), nil
}
