package escrow

import (
	"context"
	"errors"
	"math"
	"testing"

	"raffle/internal/checked"
)

func TestLedgerCreditAndRefund(t *testing.T) {
	l := NewLedger("USDC", "escrow:1")
	if err := l.Credit("alice", 20); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Credit("bob", 10); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Credit("alice", 5); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if l.Balance != 35 || l.Contribution("alice") != 25 {
		t.Fatalf("balance=%d alice=%d want=35/25", l.Balance, l.Contribution("alice"))
	}

	amount, err := l.Refund("alice")
	if err != nil || amount != 25 {
		t.Fatalf("refund=%d, %v want=25", amount, err)
	}
	if l.Balance != 10 {
		t.Fatalf("balance=%d want=10", l.Balance)
	}
	if _, err := l.Refund("alice"); !errors.Is(err, ErrNothingToRefund) {
		t.Fatalf("err=%v want=%v", err, ErrNothingToRefund)
	}
}

func TestLedgerCreditOverflowLeavesBooksUntouched(t *testing.T) {
	l := NewLedger("USDC", "escrow:1")
	if err := l.Credit("alice", math.MaxUint64); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Credit("bob", 1); !errors.Is(err, checked.ErrOverflow) {
		t.Fatalf("err=%v want overflow", err)
	}
	if _, ok := l.Deposits["bob"]; ok {
		t.Fatal("bob should not have a deposit after a failed credit")
	}
}

func TestLedgerReleaseOnce(t *testing.T) {
	l := NewLedger("USDC", "escrow:1")
	_ = l.Credit("alice", 30)
	amount, err := l.Release()
	if err != nil || amount != 30 {
		t.Fatalf("release=%d, %v want=30", amount, err)
	}
	if _, err := l.Release(); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("err=%v want=%v", err, ErrAlreadyReleased)
	}
	if _, err := l.Refund("alice"); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("refund after release err=%v", err)
	}
}

func TestLedgerCloneIsDeep(t *testing.T) {
	l := NewLedger("USDC", "escrow:1")
	_ = l.Credit("alice", 1)
	c := l.Clone()
	_ = c.Credit("alice", 1)
	if l.Contribution("alice") != 1 {
		t.Fatalf("original mutated through clone: %d", l.Contribution("alice"))
	}
}

func TestBankTransfer(t *testing.T) {
	ctx := context.Background()
	b := NewBank()
	if err := b.Mint("alice", "USDC", 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := b.Transfer(ctx, "USDC", "alice", "escrow:0", 60); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := b.Balance("alice", "USDC"); got != 40 {
		t.Fatalf("alice=%d want=40", got)
	}
	if got := b.Balance("escrow:0", "USDC"); got != 60 {
		t.Fatalf("escrow=%d want=60", got)
	}

	err := b.Transfer(ctx, "USDC", "alice", "escrow:0", 41)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err=%v want=%v", err, ErrInsufficientFunds)
	}
	if got := b.Balance("alice", "USDC"); got != 40 {
		t.Fatalf("failed transfer moved funds: alice=%d", got)
	}

	if err := b.Transfer(ctx, "SOL", "alice", "escrow:0", 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("cross-denomination err=%v", err)
	}
	if err := b.Transfer(ctx, "USDC", "alice", "alice", 1); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("self transfer err=%v", err)
	}
}

func TestBankTransferHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBank()
	_ = b.Mint("alice", "USDC", 10)
	if err := b.Transfer(ctx, "USDC", "alice", "bob", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want=%v", err, context.Canceled)
	}
}
