package sequence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"testing"

	"raffle/internal/checked"
)

func TestMemoryInitOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Next(ctx); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("err=%v want=%v", err, ErrNotInitialised)
	}
	if err := m.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := m.Init(ctx); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("err=%v want=%v", err, ErrAlreadyInitialised)
	}
}

func TestMemoryStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Init(ctx)
	for want := uint64(0); want < 5; want++ {
		got, err := m.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("got=%d want=%d", got, want)
		}
	}
}

func TestMemoryConcurrentIdsAreGapless(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Init(ctx)

	const workers, perWorker = 16, 50
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids []uint64
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := m.Next(ctx)
				if err != nil {
					panic(fmt.Sprintf("next: %v", err))
				}
				mu.Lock()
				ids = append(ids, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		if id != uint64(i) {
			t.Fatalf("ids[%d]=%d want=%d", i, id, i)
		}
	}
}

func TestMemoryOverflow(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.seed(math.MaxUint64 - 1)
	if id, err := m.Next(ctx); err != nil || id != math.MaxUint64-1 {
		t.Fatalf("id=%d, %v", id, err)
	}
	if _, err := m.Next(ctx); !errors.Is(err, checked.ErrOverflow) {
		t.Fatalf("err=%v want=%v", err, checked.ErrOverflow)
	}
}

func TestMapRedisError(t *testing.T) {
	if err := mapRedisError(errors.New("NOTINIT counter not initialised")); !errors.Is(err, ErrNotInitialised) {
		t.Fatalf("err=%v", err)
	}
	if err := mapRedisError(errors.New("ERR increment or decrement would overflow")); !errors.Is(err, checked.ErrOverflow) {
		t.Fatalf("err=%v", err)
	}
	other := errors.New("connection refused")
	if err := mapRedisError(other); err != other {
		t.Fatalf("err=%v", err)
	}
}
