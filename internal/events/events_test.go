package events

import (
	"context"
	"testing"

	"raffle/internal/models"
)

func TestMemoryAppendAndList(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()

	for i := uint64(0); i < 3; i++ {
		ev, err := log.Append(ctx, models.EventRaffleCreated, i%2, 100, models.RaffleCreated{Raffle: i % 2})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if ev.Seq != i+1 || ev.ID == "" {
			t.Fatalf("event=%+v", ev)
		}
	}

	all, _ := log.List(ctx, Filter{})
	if len(all) != 3 {
		t.Fatalf("len=%d want=3", len(all))
	}

	raffle := uint64(0)
	mine, _ := log.List(ctx, Filter{RaffleID: &raffle})
	if len(mine) != 2 {
		t.Fatalf("len=%d want=2", len(mine))
	}

	after, _ := log.List(ctx, Filter{AfterSeq: 1, Limit: 1})
	if len(after) != 1 || after[0].Seq != 2 {
		t.Fatalf("after=%+v", after)
	}
}

func TestMemorySubscribe(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()
	ch, cancel := log.Subscribe(4)

	_, _ = log.Append(ctx, models.EventTicketsBought, 7, 1, nil)
	ev := <-ch
	if ev.Kind != models.EventTicketsBought || ev.RaffleID != 7 {
		t.Fatalf("event=%+v", ev)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	if _, err := log.Append(ctx, models.EventTicketsBought, 7, 2, nil); err != nil {
		t.Fatalf("append after unsubscribe: %v", err)
	}
}

func TestMemorySlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	log := NewMemory()
	_, cancel := log.Subscribe(0)
	defer cancel()
	if _, err := log.Append(ctx, models.EventRaffleEnded, 1, 1, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
}
