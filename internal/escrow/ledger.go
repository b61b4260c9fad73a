// Package escrow keeps the per-raffle bookkeeping of funds held on behalf of
// buyers and defines the transfer service that actually moves them.
package escrow

import (
	"errors"

	"raffle/internal/checked"
)

var (
	ErrNothingToRefund = errors.New("no escrowed contribution for holder")
	ErrAlreadyReleased = errors.New("escrow already released")
)

// Ledger tracks what has been paid into one escrow account. It holds a single
// denomination and records every payer's contribution so a cancelled raffle
// can be unwound.
type Ledger struct {
	Denomination string            `gorm:"type:varchar(64);not null" json:"denomination"`
	Account      string            `gorm:"type:varchar(96);not null" json:"account"`
	Balance      uint64            `gorm:"not null;default:0" json:"balance"`
	Deposits     map[string]uint64 `gorm:"serializer:json" json:"deposits"`
	Released     bool              `gorm:"not null;default:false" json:"released"`
}

// NewLedger returns an empty ledger for one escrow account.
func NewLedger(denomination, account string) Ledger {
	return Ledger{
		Denomination: denomination,
		Account:      account,
		Deposits:     make(map[string]uint64),
	}
}

// Credit books an amount already transferred into the escrow account.
func (l *Ledger) Credit(payer string, amount uint64) error {
	balance, err := checked.Add(l.Balance, amount)
	if err != nil {
		return err
	}
	deposit, err := checked.Add(l.Deposits[payer], amount)
	if err != nil {
		return err
	}
	if l.Deposits == nil {
		l.Deposits = make(map[string]uint64)
	}
	l.Balance = balance
	l.Deposits[payer] = deposit
	return nil
}

// Contribution returns how much a payer currently has in escrow.
func (l *Ledger) Contribution(payer string) uint64 {
	return l.Deposits[payer]
}

// Refund removes a payer's whole contribution from the books and returns it.
func (l *Ledger) Refund(payer string) (uint64, error) {
	if l.Released {
		return 0, ErrAlreadyReleased
	}
	amount := l.Deposits[payer]
	if amount == 0 {
		return 0, ErrNothingToRefund
	}
	balance, err := checked.Sub(l.Balance, amount)
	if err != nil {
		return 0, err
	}
	l.Balance = balance
	delete(l.Deposits, payer)
	return amount, nil
}

// Release empties the ledger in favour of the beneficiary. It can happen once.
func (l *Ledger) Release() (uint64, error) {
	if l.Released {
		return 0, ErrAlreadyReleased
	}
	amount := l.Balance
	l.Balance = 0
	l.Released = true
	return amount, nil
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	deposits := make(map[string]uint64, len(l.Deposits))
	for k, v := range l.Deposits {
		deposits[k] = v
	}
	l.Deposits = deposits
	return l
}
