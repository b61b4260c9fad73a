package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/holiman/uint256"
)

func TestIndexIsDeterministicAndInRange(t *testing.T) {
	r := Randomness{Value: *uint256.NewInt(12345)}
	for n := 1; n <= 32; n++ {
		got := r.Index(n)
		if got < 0 || got >= n {
			t.Fatalf("Index(%d)=%d out of range", n, got)
		}
		if again := r.Index(n); again != got {
			t.Fatalf("Index(%d) not deterministic: %d then %d", n, got, again)
		}
		if want := int(12345 % n); got != want {
			t.Fatalf("Index(%d)=%d want=%d", n, got, want)
		}
	}
}

func TestIndexUsesFullWidth(t *testing.T) {
	// 2^128 + 5: the low 64 bits alone would give 5 mod 3 = 2.
	v := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	v.AddUint64(v, 5)
	r := Randomness{Value: *v}
	// 2^128 mod 3 = 1, so (2^128 + 5) mod 3 = 0.
	if got := r.Index(3); got != 0 {
		t.Fatalf("Index(3)=%d want=0", got)
	}
}

func TestMemoryRead(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Read(ctx, "feed"); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("err=%v want=%v", err, ErrInvalidAccount)
	}
	m.Publish("feed", uint256.NewInt(99), 1000)
	r, err := m.Read(ctx, "feed")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if r.Value.Uint64() != 99 || r.UpdatedAt != 1000 {
		t.Fatalf("got=%v", r)
	}
	if age := r.Age(1120); age != 120 {
		t.Fatalf("age=%d want=120", age)
	}
}

func TestParseFields(t *testing.T) {
	r, err := ParseFields(map[string]string{"value": "0xff", "updated_at": "1700000000"})
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if r.Value.Uint64() != 255 || r.UpdatedAt != 1700000000 {
		t.Fatalf("got=%v", r)
	}

	r, err = ParseFields(map[string]string{"value": "340282366920938463463374607431768211457", "updated_at": "5"})
	if err != nil {
		t.Fatalf("parse decimal: %v", err)
	}
	if r.Value.BitLen() != 129 {
		t.Fatalf("bitlen=%d want=129", r.Value.BitLen())
	}

	zeroPadded := []struct {
		raw  string
		want uint64
	}{
		{"0x00ab", 0xab},
		{"0xabc", 0xabc},
		{"0x" + strings.Repeat("0", 63) + "1", 1},
		{"0x" + strings.Repeat("0", 64), 0},
	}
	for _, c := range zeroPadded {
		r, err := ParseFields(map[string]string{"value": c.raw, "updated_at": "1"})
		if err != nil {
			t.Fatalf("parse %s: %v", c.raw, err)
		}
		if r.Value.Uint64() != c.want || r.Value.BitLen() > 64 {
			t.Fatalf("parse %s=%v want=%d", c.raw, &r.Value, c.want)
		}
	}

	full := "0x" + strings.Repeat("f", 64)
	r, err = ParseFields(map[string]string{"value": full, "updated_at": "1"})
	if err != nil {
		t.Fatalf("parse %s: %v", full, err)
	}
	if r.Value.BitLen() != 256 {
		t.Fatalf("bitlen=%d want=256", r.Value.BitLen())
	}

	bad := []map[string]string{
		{},
		{"value": "0x", "updated_at": "12"},
		{"value": "0x" + strings.Repeat("1", 65), "updated_at": "12"},
		{"value": "0xzz", "updated_at": "12"},
		{"value": "12"},
		{"updated_at": "12"},
		{"value": "zz", "updated_at": "12"},
		{"value": "12", "updated_at": "soon"},
	}
	for _, fields := range bad {
		if _, err := ParseFields(fields); !errors.Is(err, ErrInvalidAccount) {
			t.Errorf("ParseFields(%v) err=%v want=%v", fields, err, ErrInvalidAccount)
		}
	}
}
