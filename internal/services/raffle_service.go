package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/logger"

	"raffle/internal/checked"
	"raffle/internal/clock"
	"raffle/internal/escrow"
	"raffle/internal/events"
	"raffle/internal/models"
	"raffle/internal/oracle"
	"raffle/internal/sequence"
	"raffle/internal/store"
)

const (
	DefaultMaxRandomnessAge = 60 * time.Second
	DefaultDisputeWindow    = 30 * 24 * time.Hour
)

// Options tunes the lifecycle rules that are not fixed by the record itself.
type Options struct {
	// MaxRandomnessAge is the staleness window for oracle values. A value is
	// accepted only while its age is strictly below the window. Oracle
	// timestamps are whole seconds, so the window is rounded up to a second.
	MaxRandomnessAge time.Duration
	// DisputeWindow is added to the shipment time to obtain the dispute deadline.
	DisputeWindow time.Duration
	// DeliveryConfirmers may confirm delivery on behalf of a winner.
	DeliveryConfirmers []models.Identity
}

// Dependencies are the collaborators a RaffleService drives.
type Dependencies struct {
	Store     store.Store
	Sequence  sequence.Allocator
	Transfers escrow.Transferer
	Oracle    oracle.Reader
	Events    events.Log
	Clock     clock.Clock
}

// RaffleService runs the raffle lifecycle. Every mutating operation goes
// through Store.Update, so all checks and effects of one call happen against
// a single consistent record and nothing is committed if any step fails.
type RaffleService struct {
	store     store.Store
	sequence  sequence.Allocator
	transfers escrow.Transferer
	oracle    oracle.Reader
	events    events.Log
	clock     clock.Clock
	opts      Options

	maxAgeSeconds int64
}

// NewRaffleService creates a RaffleService. Zero options fall back to the
// defaults.
func NewRaffleService(deps Dependencies, opts Options) *RaffleService {
	if opts.MaxRandomnessAge <= 0 {
		opts.MaxRandomnessAge = DefaultMaxRandomnessAge
	}
	if opts.DisputeWindow <= 0 {
		opts.DisputeWindow = DefaultDisputeWindow
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.Events == nil {
		deps.Events = events.NewMemory()
	}
	return &RaffleService{
		store:     deps.Store,
		sequence:  deps.Sequence,
		transfers: deps.Transfers,
		oracle:    deps.Oracle,
		events:    deps.Events,
		clock:     deps.Clock,
		opts:      opts,

		maxAgeSeconds: int64((opts.MaxRandomnessAge + time.Second - 1) / time.Second),
	}
}

// Now exposes the service clock so callers can reason about deadlines the same
// way the service does.
func (s *RaffleService) Now() int64 {
	return s.clock.Now()
}

// InitialiseCounter creates the shared raffle id counter.
func (s *RaffleService) InitialiseCounter(ctx context.Context) error {
	if err := s.sequence.Init(ctx); err != nil {
		return err
	}
	logger.Infof("raffle counter initialised")
	return nil
}

// CreateRaffleInput carries the seller supplied raffle terms. Prices are in
// whole token units and get scaled by models.PriceScale.
type CreateRaffleInput struct {
	Seller              models.Identity
	PaymentDenomination models.Identity
	ItemName            string
	ItemDescription     string
	ItemImageRef        string
	SellingPrice        uint64
	TicketPrice         uint64
	MinTickets          uint32
	MaxTickets          uint32
	Deadline            int64
}

// CreateRaffle validates the terms, allocates an id and stores a new active
// raffle with an empty escrow.
func (s *RaffleService) CreateRaffle(ctx context.Context, in CreateRaffleInput) (*models.Raffle, error) {
	if in.Seller == "" {
		return nil, ErrUnauthorized
	}
	if in.SellingPrice == 0 {
		return nil, fmt.Errorf("%w: selling price must be positive", ErrInvalidPrice)
	}
	if in.TicketPrice == 0 {
		return nil, fmt.Errorf("%w: ticket price must be positive", ErrInvalidPrice)
	}
	if in.MinTickets == 0 {
		return nil, fmt.Errorf("%w: min tickets must be positive", ErrInvalidTicketCount)
	}
	if in.MaxTickets < in.MinTickets {
		return nil, fmt.Errorf("%w: max tickets %d below min tickets %d", ErrInvalidTicketCount, in.MaxTickets, in.MinTickets)
	}
	now := s.clock.Now()
	if in.Deadline <= now {
		return nil, fmt.Errorf("%w: %d is not after %d", ErrInvalidDeadline, in.Deadline, now)
	}
	if err := validateMetadata(in); err != nil {
		return nil, err
	}

	sellingPrice, err := checked.Mul(in.SellingPrice, models.PriceScale)
	if err != nil {
		return nil, fmt.Errorf("scale selling price: %w", err)
	}
	ticketPrice, err := checked.Mul(in.TicketPrice, models.PriceScale)
	if err != nil {
		return nil, fmt.Errorf("scale ticket price: %w", err)
	}

	id, err := s.sequence.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate raffle id: %w", err)
	}

	raffle := &models.Raffle{
		ID:                  id,
		Seller:              in.Seller,
		PaymentDenomination: in.PaymentDenomination,
		ItemName:            in.ItemName,
		ItemDescription:     in.ItemDescription,
		ItemImageRef:        in.ItemImageRef,
		SellingPrice:        sellingPrice,
		TicketPrice:         ticketPrice,
		MinTickets:          in.MinTickets,
		MaxTickets:          in.MaxTickets,
		Deadline:            in.Deadline,
		Participants:        make([]models.Identity, 0, models.MaxParticipants),
		Status:              models.StatusActive,
		Escrow:              escrow.NewLedger(in.PaymentDenomination.String(), models.EscrowAccount(id)),
	}
	if err := s.store.Create(ctx, raffle); err != nil {
		return nil, fmt.Errorf("store raffle %d: %w", id, err)
	}

	logger.Infof("raffle %d created by %s: ticket price %d, tickets %d-%d, deadline %d",
		id, in.Seller, ticketPrice, in.MinTickets, in.MaxTickets, in.Deadline)
	s.emit(ctx, models.EventRaffleCreated, id, models.RaffleCreated{
		Raffle:      id,
		Seller:      in.Seller,
		TicketPrice: ticketPrice,
		Deadline:    in.Deadline,
	})
	return raffle, nil
}

func validateMetadata(in CreateRaffleInput) error {
	switch {
	case in.PaymentDenomination == "":
		return fmt.Errorf("%w: payment denomination required", ErrInvalidMetadata)
	case in.ItemName == "":
		return fmt.Errorf("%w: item name required", ErrInvalidMetadata)
	case utf8.RuneCountInString(in.ItemName) > models.MaxItemNameLen:
		return fmt.Errorf("%w: item name longer than %d", ErrInvalidMetadata, models.MaxItemNameLen)
	case utf8.RuneCountInString(in.ItemDescription) > models.MaxItemDescriptionLen:
		return fmt.Errorf("%w: item description longer than %d", ErrInvalidMetadata, models.MaxItemDescriptionLen)
	case utf8.RuneCountInString(in.ItemImageRef) > models.MaxItemImageRefLen:
		return fmt.Errorf("%w: item image ref longer than %d", ErrInvalidMetadata, models.MaxItemImageRefLen)
	}
	return nil
}

// BuyTickets moves numTickets * ticketPrice from the buyer into the raffle
// escrow and books the entries. A buyer occupies one participant slot however
// many tickets they hold.
func (s *RaffleService) BuyTickets(ctx context.Context, raffleID uint64, buyer models.Identity, numTickets uint8) (*models.Raffle, error) {
	if buyer == "" {
		return nil, ErrUnauthorized
	}

	var (
		totalPrice uint64
		moved      *movement
	)
	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		now := s.clock.Now()

		if len(r.Participants) >= models.MaxParticipants {
			return ErrRaffleFull
		}
		if r.Status != models.StatusActive {
			return fmt.Errorf("%w: status %s", ErrRaffleNotActive, r.Status)
		}
		if numTickets == 0 {
			return fmt.Errorf("%w: must buy at least one ticket", ErrInvalidTicketCount)
		}
		if now >= r.Deadline {
			return ErrDeadlinePassed
		}
		if r.IsSoldOut {
			return ErrTicketsAlreadySold
		}
		entries, err := checked.Add(r.TotalEntries, uint64(numTickets))
		if err != nil {
			return err
		}
		if entries > uint64(r.MaxTickets) {
			return fmt.Errorf("%w: %d + %d exceeds %d", ErrMaxTicketsReached, r.TotalEntries, numTickets, r.MaxTickets)
		}

		price, err := checked.Mul(uint64(numTickets), r.TicketPrice)
		if err != nil {
			return err
		}
		collected, err := checked.Add(r.TotalCollected, price)
		if err != nil {
			return err
		}
		progress, err := checked.Progress(entries, r.MaxTickets)
		if err != nil {
			return err
		}
		isNew := !r.HasParticipant(buyer)
		if isNew && len(r.Participants) >= models.MaxParticipants {
			return ErrRaffleFull
		}
		ledger := r.Escrow.Clone()
		if err := ledger.Credit(buyer.String(), price); err != nil {
			return err
		}

		if err := s.transfers.Transfer(ctx, r.PaymentDenomination.String(), buyer.String(), r.Escrow.Account, price); err != nil {
			logger.Warningf("raffle %d: transfer of %d from %s failed: %v", r.ID, price, buyer, err)
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		moved = &movement{r.PaymentDenomination.String(), buyer.String(), r.Escrow.Account, price}

		r.TotalCollected = collected
		r.Escrow = ledger
		if isNew {
			r.Participants = append(r.Participants, buyer)
		}
		r.TotalEntries = entries
		if r.TotalEntries >= uint64(r.MaxTickets) {
			r.IsSoldOut = true
		}
		r.Progress = progress
		totalPrice = price
		return nil
	})
	if err != nil {
		s.reverse(ctx, raffleID, moved)
		return nil, err
	}

	logger.Infof("raffle %d: %s bought %d tickets for %d, entries %d/%d, participants %d",
		raffleID, buyer, numTickets, totalPrice, updated.TotalEntries, updated.MaxTickets, len(updated.Participants))
	s.emit(ctx, models.EventTicketsBought, raffleID, models.TicketsBought{
		Buyer:                buyer,
		Raffle:               raffleID,
		TicketsBought:        numTickets,
		TotalTicketsNow:      updated.TotalEntries,
		TotalParticipantsNow: uint32(len(updated.Participants)),
	})
	return updated, nil
}

// DrawWinner picks the winner from the participant slots using the latest
// oracle value. Any keeper may trigger it once the deadline has passed. The
// pick is uniform over distinct buyers, not weighted by tickets held. Escrowed
// funds stay where they are until delivery is confirmed.
func (s *RaffleService) DrawWinner(ctx context.Context, raffleID uint64, oracleRef string, keeper models.Identity) (*models.Raffle, error) {
	if keeper == "" {
		return nil, ErrUnauthorized
	}

	var index int
	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		now := s.clock.Now()

		if now <= r.Deadline {
			return ErrDeadlineNotReached
		}
		if r.Claimed {
			return ErrAlreadyClaimed
		}
		if r.Status != models.StatusActive {
			return fmt.Errorf("%w: status %s", ErrRaffleNotActive, r.Status)
		}
		if len(r.Participants) == 0 {
			return ErrNoParticipants
		}

		rnd, err := s.oracle.Read(ctx, oracleRef)
		if err != nil {
			return fmt.Errorf("read randomness %q: %w", oracleRef, err)
		}
		if rnd.UpdatedAt > now {
			return fmt.Errorf("%w: published at %d, after %d", ErrInvalidRandomnessAccount, rnd.UpdatedAt, now)
		}
		if age := rnd.Age(now); age >= s.maxAgeSeconds {
			return fmt.Errorf("%w: %ds old", ErrRandomnessTooOld, age)
		}

		index = rnd.Index(len(r.Participants))
		winner := r.Participants[index]
		source := oracleRef

		r.Winner = &winner
		r.Claimed = true
		r.DeliveryStatus = models.DeliveryPending
		r.RandomnessSource = &source
		r.Status = models.StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("raffle %d: winner %s (slot %d of %d) drawn by %s from %s",
		raffleID, *updated.Winner, index, len(updated.Participants), keeper, oracleRef)
	s.emit(ctx, models.EventWinnerDrawn, raffleID, models.WinnerDrawn{
		Raffle:           raffleID,
		Winner:           *updated.Winner,
		WinnerIndex:      index,
		RandomnessSource: oracleRef,
		Keeper:           keeper,
	})
	return updated, nil
}

// MarkShipped is the seller's signal that the item left. It opens the dispute
// window.
func (s *RaffleService) MarkShipped(ctx context.Context, raffleID uint64, seller models.Identity, trackingInfo *string) (*models.Raffle, error) {
	if err := validateTracking(trackingInfo); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		if !r.HasWinner() {
			return ErrRaffleNotCompleted
		}
		if seller != r.Seller {
			return ErrNotSeller
		}
		if r.DeliveryStatus != models.DeliveryPending {
			return fmt.Errorf("%w: delivery is %s", ErrInvalidRaffleState, r.DeliveryStatus)
		}
		now := s.clock.Now()
		dispute, err := checked.AddInt64(now, int64(s.opts.DisputeWindow/time.Second))
		if err != nil {
			return err
		}

		r.TrackingInfo = trackingInfo
		r.DeliveryStatus = models.DeliveryShipped
		r.ShippedAt = &now
		r.DisputeDeadline = &dispute
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("raffle %d: shipped to %s, dispute deadline %d", raffleID, *updated.Winner, *updated.DisputeDeadline)
	s.emit(ctx, models.EventProductShipped, raffleID, models.ProductShipped{
		Raffle:    raffleID,
		Winner:    *updated.Winner,
		ShippedAt: *updated.ShippedAt,
	})
	return updated, nil
}

// MarkDelivered records that the winner received the item. The winner or one
// of the configured confirmers may call it.
func (s *RaffleService) MarkDelivered(ctx context.Context, raffleID uint64, caller models.Identity, trackingInfo *string) (*models.Raffle, error) {
	if err := validateTracking(trackingInfo); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		if !r.HasWinner() {
			return ErrRaffleNotCompleted
		}
		if caller != *r.Winner && !slices.Contains(s.opts.DeliveryConfirmers, caller) {
			return ErrNotWinner
		}
		if r.DeliveryStatus != models.DeliveryShipped {
			return fmt.Errorf("%w: delivery is %s", ErrInvalidRaffleState, r.DeliveryStatus)
		}
		now := s.clock.Now()
		if trackingInfo != nil {
			r.TrackingInfo = trackingInfo
		}
		r.DeliveryStatus = models.DeliveryDelivered
		r.DeliveredAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("raffle %d: delivery to %s confirmed by %s", raffleID, *updated.Winner, caller)
	s.emit(ctx, models.EventProductDelivered, raffleID, models.ProductDelivered{
		Raffle:      raffleID,
		Winner:      *updated.Winner,
		DeliveredAt: *updated.DeliveredAt,
	})
	return updated, nil
}

func validateTracking(info *string) error {
	if info != nil && utf8.RuneCountInString(*info) > models.MaxTrackingInfoLen {
		return fmt.Errorf("%w: tracking info longer than %d", ErrInvalidMetadata, models.MaxTrackingInfoLen)
	}
	return nil
}

// ReleaseFunds pays the whole escrow balance out to the seller once delivery
// is confirmed. It can only succeed once.
func (s *RaffleService) ReleaseFunds(ctx context.Context, raffleID uint64, caller models.Identity) (*models.Raffle, error) {
	if caller == "" {
		return nil, ErrUnauthorized
	}

	var (
		amount uint64
		moved  *movement
	)
	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		if !r.HasWinner() {
			return ErrRaffleNotCompleted
		}
		if r.DeliveryStatus != models.DeliveryDelivered {
			return fmt.Errorf("%w: delivery is %s", ErrInvalidRaffleState, r.DeliveryStatus)
		}
		ledger := r.Escrow.Clone()
		released, err := ledger.Release()
		if err != nil {
			return err
		}
		if released > 0 {
			if err := s.transfers.Transfer(ctx, r.PaymentDenomination.String(), r.Escrow.Account, r.Seller.String(), released); err != nil {
				logger.Warningf("raffle %d: release of %d to %s failed: %v", r.ID, released, r.Seller, err)
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
			moved = &movement{r.PaymentDenomination.String(), r.Escrow.Account, r.Seller.String(), released}
		}
		r.Escrow = ledger
		amount = released
		return nil
	})
	if err != nil {
		s.reverse(ctx, raffleID, moved)
		return nil, err
	}

	logger.Infof("raffle %d: released %d to seller %s", raffleID, amount, updated.Seller)
	s.emit(ctx, models.EventFundsReleased, raffleID, models.FundsReleased{
		Raffle: raffleID,
		Seller: updated.Seller,
		Amount: amount,
	})
	return updated, nil
}

// CancelRaffle lets the seller call off a raffle that closed without reaching
// its minimum ticket count. Buyers then reclaim their payments with
// RefundParticipant.
func (s *RaffleService) CancelRaffle(ctx context.Context, raffleID uint64, seller models.Identity) (*models.Raffle, error) {
	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		if seller != r.Seller {
			return ErrNotSeller
		}
		if r.Status != models.StatusActive {
			return fmt.Errorf("%w: status %s", ErrRaffleNotActive, r.Status)
		}
		if s.clock.Now() <= r.Deadline {
			return ErrDeadlineNotReached
		}
		if r.TotalEntries >= uint64(r.MinTickets) {
			return fmt.Errorf("%w: %d of %d", ErrMinTicketsReached, r.TotalEntries, r.MinTickets)
		}
		r.Status = models.StatusCancelled
		if r.Escrow.Balance == 0 {
			r.Status = models.StatusRefunded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("raffle %d: cancelled with %d of %d minimum entries", raffleID, updated.TotalEntries, updated.MinTickets)
	s.emit(ctx, models.EventRaffleCancelled, raffleID, models.RaffleCancelled{
		Raffle:       raffleID,
		TotalEntries: updated.TotalEntries,
		MinTickets:   updated.MinTickets,
	})
	return updated, nil
}

// RefundParticipant returns a participant's escrowed payments from a cancelled
// raffle. The raffle becomes Refunded once the escrow is empty.
func (s *RaffleService) RefundParticipant(ctx context.Context, raffleID uint64, participant models.Identity) (*models.Raffle, error) {
	if participant == "" {
		return nil, ErrUnauthorized
	}

	var (
		amount uint64
		moved  *movement
	)
	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		if r.Status != models.StatusCancelled {
			return fmt.Errorf("%w: status %s", ErrInvalidRaffleState, r.Status)
		}
		ledger := r.Escrow.Clone()
		refund, err := ledger.Refund(participant.String())
		if err != nil {
			return err
		}
		if err := s.transfers.Transfer(ctx, r.PaymentDenomination.String(), r.Escrow.Account, participant.String(), refund); err != nil {
			logger.Warningf("raffle %d: refund of %d to %s failed: %v", r.ID, refund, participant, err)
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		moved = &movement{r.PaymentDenomination.String(), r.Escrow.Account, participant.String(), refund}
		r.Escrow = ledger
		if ledger.Balance == 0 {
			r.Status = models.StatusRefunded
		}
		amount = refund
		return nil
	})
	if err != nil {
		s.reverse(ctx, raffleID, moved)
		return nil, err
	}

	logger.Infof("raffle %d: refunded %d to %s, escrow left %d", raffleID, amount, participant, updated.Escrow.Balance)
	s.emit(ctx, models.EventParticipantRefunded, raffleID, models.ParticipantRefunded{
		Raffle:      raffleID,
		Participant: participant,
		Amount:      amount,
	})
	return updated, nil
}

// CloseExpired ends a raffle whose deadline passed without a single buyer.
// There is nothing to draw and nothing in escrow.
func (s *RaffleService) CloseExpired(ctx context.Context, raffleID uint64) (*models.Raffle, error) {
	updated, err := s.store.Update(ctx, raffleID, func(r *models.Raffle) error {
		if r.Status != models.StatusActive {
			return fmt.Errorf("%w: status %s", ErrRaffleNotActive, r.Status)
		}
		if s.clock.Now() <= r.Deadline {
			return ErrDeadlineNotReached
		}
		if len(r.Participants) > 0 {
			return fmt.Errorf("%w: %d participants waiting for a draw", ErrInvalidRaffleState, len(r.Participants))
		}
		r.Status = models.StatusEnded
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("raffle %d: ended without participants", raffleID)
	s.emit(ctx, models.EventRaffleEnded, raffleID, models.RaffleEnded{
		Raffle:   raffleID,
		Deadline: updated.Deadline,
	})
	return updated, nil
}

// movement is a transfer made while a record change was pending.
type movement struct {
	denomination string
	from, to     string
	amount       uint64
}

// reverse undoes m after the record change it belonged to failed to commit.
// m is nil when nothing moved.
func (s *RaffleService) reverse(ctx context.Context, raffleID uint64, m *movement) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.transfers.Transfer(ctx, m.denomination, m.to, m.from, m.amount); err != nil {
		logger.Errorf("raffle %d: could not reverse %d %s from %s to %s: %v",
			raffleID, m.amount, m.denomination, m.to, m.from, err)
		return
	}
	logger.Warningf("raffle %d: record not saved, reversed %d %s back to %s", raffleID, m.amount, m.denomination, m.from)
}

// GetRaffle returns a snapshot of one raffle.
func (s *RaffleService) GetRaffle(ctx context.Context, raffleID uint64) (*models.Raffle, error) {
	return s.store.Get(ctx, raffleID)
}

// ListRaffles returns raffles ordered by id.
func (s *RaffleService) ListRaffles(ctx context.Context, params store.ListParams) ([]*models.Raffle, error) {
	return s.store.List(ctx, params)
}

// DueForSettlement returns active raffles whose deadline has passed.
func (s *RaffleService) DueForSettlement(ctx context.Context, limit int) ([]*models.Raffle, error) {
	active := models.StatusActive
	now := s.clock.Now()
	return s.store.List(ctx, store.ListParams{Status: &active, DeadlineBefore: &now, Limit: limit})
}

// Events returns the notification log.
func (s *RaffleService) Events() events.Log {
	return s.events
}

// emit appends to the notification log. The operation has already committed,
// so a failing log is reported but does not fail the call.
func (s *RaffleService) emit(ctx context.Context, kind models.EventKind, raffleID uint64, payload any) {
	if _, err := s.events.Append(ctx, kind, raffleID, s.clock.Now(), payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warningf("raffle %d: %s not recorded, request cancelled", raffleID, kind)
			return
		}
		logger.Errorf("raffle %d: failed to record %s: %v", raffleID, kind, err)
	}
}
