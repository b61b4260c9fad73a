package services

import (
	"errors"

	"raffle/internal/checked"
	"raffle/internal/escrow"
	"raffle/internal/oracle"
	"raffle/internal/sequence"
	"raffle/internal/store"
)

// Validation errors.
var (
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidTicketCount = errors.New("invalid ticket count")
	ErrInvalidDeadline    = errors.New("invalid deadline")
	ErrInvalidMetadata    = errors.New("invalid item metadata")
	ErrRaffleNotActive    = errors.New("raffle not active")
	ErrInvalidRaffleState = errors.New("invalid raffle state")
	ErrRaffleNotCompleted = errors.New("raffle not completed")
	ErrAlreadyClaimed     = errors.New("already claimed")
	ErrFundsReleased      = escrow.ErrAlreadyReleased
	ErrNothingToRefund    = escrow.ErrNothingToRefund
)

// Arithmetic errors.
var (
	ErrOverflow  = checked.ErrOverflow
	ErrUnderFlow = checked.ErrUnderflow
)

// Capacity and timing errors.
var (
	ErrMaxTicketsReached  = errors.New("max tickets reached")
	ErrRaffleFull         = errors.New("participants full")
	ErrTicketsAlreadySold = errors.New("tickets already sold")
	ErrDeadlinePassed     = errors.New("deadline passed")
	ErrDeadlineNotReached = errors.New("deadline not reached")
	ErrNoParticipants     = errors.New("no participants")
	ErrMinTicketsReached  = errors.New("min tickets reached")
)

// Oracle errors.
var (
	ErrInvalidRandomnessAccount = oracle.ErrInvalidAccount
	ErrRandomnessTooOld         = errors.New("random data too old")
)

// Authorization errors.
var (
	ErrNotSeller    = errors.New("not seller")
	ErrNotWinner    = errors.New("not winner")
	ErrUnauthorized = errors.New("unauthorized request")
)

// Collaborator and lookup errors.
var (
	ErrTransferFailed  = errors.New("escrow transfer failed")
	ErrRaffleNotFound  = store.ErrNotFound
	ErrCounterExists   = sequence.ErrAlreadyInitialised
	ErrCounterNotReady = sequence.ErrNotInitialised
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindArithmetic
	KindCapacity
	KindOracle
	KindAuthorization
	KindNotFound
	KindConflict
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindArithmetic:
		return "arithmetic"
	case KindCapacity:
		return "capacity"
	case KindOracle:
		return "oracle"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	}
	return "internal"
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrInvalidPrice, ErrInvalidTicketCount, ErrInvalidDeadline, ErrInvalidMetadata,
		ErrRaffleNotActive, ErrInvalidRaffleState, ErrRaffleNotCompleted, ErrAlreadyClaimed, ErrFundsReleased,
		ErrNothingToRefund}},
	{KindArithmetic, []error{ErrOverflow, ErrUnderFlow}},
	{KindCapacity, []error{ErrMaxTicketsReached, ErrRaffleFull, ErrTicketsAlreadySold, ErrDeadlinePassed,
		ErrDeadlineNotReached, ErrNoParticipants, ErrMinTicketsReached}},
	{KindOracle, []error{ErrInvalidRandomnessAccount, ErrRandomnessTooOld}},
	{KindAuthorization, []error{ErrNotSeller, ErrNotWinner, ErrUnauthorized}},
	{KindNotFound, []error{ErrRaffleNotFound}},
	{KindConflict, []error{ErrCounterExists, ErrCounterNotReady, store.ErrExists}},
	{KindDependency, []error{ErrTransferFailed}},
}

// Classify maps an error returned by RaffleService to its Kind.
func Classify(err error) Kind {
	for _, group := range kinds {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}
	return KindInternal
}
