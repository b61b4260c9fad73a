// Package oracle reads externally published randomness. The service never
// computes randomness itself; it only consumes what a feed last recorded.
package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/holiman/uint256"
)

var ErrInvalidAccount = errors.New("invalid randomness account data")

// Randomness is the last value a feed published and when it did so.
type Randomness struct {
	Value     uint256.Int
	UpdatedAt int64
}

// Age is the number of seconds since the value was published.
func (r Randomness) Age(now int64) int64 {
	return now - r.UpdatedAt
}

// Index maps the value uniformly onto [0, n). n must be positive.
func (r Randomness) Index(n int) int {
	if n <= 0 {
		panic("oracle: Index of empty range")
	}
	var mod uint256.Int
	mod.Mod(&r.Value, uint256.NewInt(uint64(n)))
	return int(mod.Uint64())
}

// Reader resolves an oracle account reference to its latest randomness.
type Reader interface {
	Read(ctx context.Context, ref string) (Randomness, error)
}

// Memory is a Reader fed directly by the caller.
type Memory struct {
	mu     sync.RWMutex
	values map[string]Randomness
}

// NewMemory returns an empty feed. Reads fail until a value is published.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]Randomness)}
}

// Publish replaces the latest value for ref.
func (m *Memory) Publish(ref string, value *uint256.Int, updatedAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[ref] = Randomness{Value: *value, UpdatedAt: updatedAt}
}

// Read returns the latest value for ref, or ErrInvalidAccount if nothing was
// published under it.
func (m *Memory) Read(ctx context.Context, ref string) (Randomness, error) {
	if err := ctx.Err(); err != nil {
		return Randomness{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.values[ref]
	if !ok {
		return Randomness{}, fmt.Errorf("%w: unknown account %q", ErrInvalidAccount, ref)
	}
	return r, nil
}

// parseHex accepts fixed-width words, so leading zero digits are allowed.
func parseHex(digits string) (*uint256.Int, error) {
	if digits == "" {
		return nil, errors.New("empty hex value")
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return nil, err
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("hex value is %d bytes, max 32", len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

// ParseFields decodes the textual representation used by hash-based feeds:
// "value" as decimal or 0x-prefixed hex, "updated_at" as unix seconds.
func ParseFields(fields map[string]string) (Randomness, error) {
	rawValue, ok := fields["value"]
	if !ok || rawValue == "" {
		return Randomness{}, fmt.Errorf("%w: missing value", ErrInvalidAccount)
	}
	rawAt, ok := fields["updated_at"]
	if !ok || rawAt == "" {
		return Randomness{}, fmt.Errorf("%w: missing updated_at", ErrInvalidAccount)
	}

	var (
		value *uint256.Int
		err   error
	)
	if strings.HasPrefix(rawValue, "0x") || strings.HasPrefix(rawValue, "0X") {
		value, err = parseHex(rawValue[2:])
	} else {
		value, err = uint256.FromDecimal(rawValue)
	}
	if err != nil {
		return Randomness{}, fmt.Errorf("%w: value: %v", ErrInvalidAccount, err)
	}
	at, err := strconv.ParseInt(rawAt, 10, 64)
	if err != nil {
		return Randomness{}, fmt.Errorf("%w: updated_at: %v", ErrInvalidAccount, err)
	}
	return Randomness{Value: *value, UpdatedAt: at}, nil
}
