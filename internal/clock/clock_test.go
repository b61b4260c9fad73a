package clock

import (
	"testing"
	"time"
)

func TestSystemNeverGoesBackwards(t *testing.T) {
	c := NewSystem()
	c.last.Store(time.Now().Add(time.Hour).Unix())
	ahead := c.last.Load()
	if got := c.Now(); got != ahead {
		t.Fatalf("Now()=%d want=%d", got, ahead)
	}
}

func TestSystemTracksWallClock(t *testing.T) {
	c := NewSystem()
	before := time.Now().Unix()
	got := c.Now()
	if got < before {
		t.Fatalf("Now()=%d is before %d", got, before)
	}
}

func TestManual(t *testing.T) {
	c := NewManual(1000)
	c.Advance(90 * time.Second)
	if got := c.Now(); got != 1090 {
		t.Fatalf("Now()=%d want=1090", got)
	}
	c.Set(5)
	if got := c.Now(); got != 5 {
		t.Fatalf("Now()=%d want=5", got)
	}
}
