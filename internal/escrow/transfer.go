package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"raffle/internal/checked"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidTransfer   = errors.New("invalid transfer")
)

// Transferer moves value between two balances of the same denomination.
type Transferer interface {
	Transfer(ctx context.Context, denomination, from, to string, amount uint64) error
}

type balanceKey struct {
	owner        string
	denomination string
}

// Bank is an in-process Transferer holding balances in memory.
type Bank struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
}

// NewBank returns a bank with no balances.
func NewBank() *Bank {
	return &Bank{balances: make(map[balanceKey]uint64)}
}

// Mint credits an owner out of thin air. Only the faucet and tests use it.
func (b *Bank) Mint(owner, denomination string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := balanceKey{owner, denomination}
	next, err := checked.Add(b.balances[key], amount)
	if err != nil {
		return err
	}
	b.balances[key] = next
	return nil
}

// Balance returns what owner holds in denomination.
func (b *Bank) Balance(owner, denomination string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[balanceKey{owner, denomination}]
}

// Transfer moves amount between two distinct owners. The whole amount moves or
// nothing does.
func (b *Bank) Transfer(ctx context.Context, denomination, from, to string, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from == "" || to == "" || from == to {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransfer, from, to)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	src := balanceKey{from, denomination}
	dst := balanceKey{to, denomination}
	remaining, err := checked.Sub(b.balances[src], amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, from, b.balances[src], denomination, amount)
	}
	credited, err := checked.Add(b.balances[dst], amount)
	if err != nil {
		return err
	}
	b.balances[src] = remaining
	b.balances[dst] = credited
	return nil
}
