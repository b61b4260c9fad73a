package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"raffle/internal/models"
)

func TestMemoryCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	r := &models.Raffle{ID: 3, Status: models.StatusActive}
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, r); !errors.Is(err, ErrExists) {
		t.Fatalf("err=%v want=%v", err, ErrExists)
	}
	if _, err := s.Get(ctx, 4); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrNotFound)
	}

	got, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Status = models.StatusEnded
	again, _ := s.Get(ctx, 3)
	if again.Status != models.StatusActive {
		t.Fatal("mutating a returned record changed the stored one")
	}
}

func TestMemoryUpdateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.Create(ctx, &models.Raffle{ID: 1, TotalEntries: 1})

	boom := errors.New("boom")
	_, err := s.Update(ctx, 1, func(r *models.Raffle) error {
		r.TotalEntries = 99
		r.Participants = append(r.Participants, "x")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want=%v", err, boom)
	}
	got, _ := s.Get(ctx, 1)
	if got.TotalEntries != 1 || len(got.Participants) != 0 {
		t.Fatalf("failed update leaked state: %+v", got)
	}

	updated, err := s.Update(ctx, 1, func(r *models.Raffle) error {
		r.TotalEntries = 2
		return nil
	})
	if err != nil || updated.TotalEntries != 2 {
		t.Fatalf("updated=%+v err=%v", updated, err)
	}
}

func TestMemoryUpdateSerialisesPerRaffle(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.Create(ctx, &models.Raffle{ID: 1})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, 1, func(r *models.Raffle) error {
				r.TotalEntries++
				return nil
			})
		}()
	}
	wg.Wait()
	got, _ := s.Get(ctx, 1)
	if got.TotalEntries != 100 {
		t.Fatalf("entries=%d want=100", got.TotalEntries)
	}
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_ = s.Create(ctx, &models.Raffle{ID: 2, Status: models.StatusActive, Deadline: 50})
	_ = s.Create(ctx, &models.Raffle{ID: 1, Status: models.StatusActive, Deadline: 200})
	_ = s.Create(ctx, &models.Raffle{ID: 3, Status: models.StatusCompleted, Deadline: 10})

	active := models.StatusActive
	items, _ := s.List(ctx, ListParams{Status: &active})
	if len(items) != 2 || items[0].ID != 1 || items[1].ID != 2 {
		t.Fatalf("items=%v", ids(items))
	}

	before := int64(100)
	items, _ = s.List(ctx, ListParams{Status: &active, DeadlineBefore: &before})
	if len(items) != 1 || items[0].ID != 2 {
		t.Fatalf("items=%v", ids(items))
	}

	items, _ = s.List(ctx, ListParams{Offset: 1, Limit: 1})
	if len(items) != 1 || items[0].ID != 2 {
		t.Fatalf("items=%v", ids(items))
	}
	items, _ = s.List(ctx, ListParams{Offset: 10})
	if len(items) != 0 {
		t.Fatalf("items=%v", ids(items))
	}
}

func ids(items []*models.Raffle) []uint64 {
	out := make([]uint64, 0, len(items))
	for _, r := range items {
		out = append(out, r.ID)
	}
	return out
}
