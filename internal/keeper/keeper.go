package keeper

import (
	"context"
	"errors"
	"sync"

	"github.com/google/logger"

	"raffle/internal/models"
	"raffle/internal/services"
)

// DefaultBatchSize caps how many raffles one sweep settles.
const DefaultBatchSize = 100

// Settler is the part of the raffle service a keeper drives.
type Settler interface {
	DueForSettlement(ctx context.Context, limit int) ([]*models.Raffle, error)
	DrawWinner(ctx context.Context, raffleID uint64, oracleRef string, keeper models.Identity) (*models.Raffle, error)
	CloseExpired(ctx context.Context, raffleID uint64) (*models.Raffle, error)
}

// Report summarises one sweep.
type Report struct {
	Drawn   int
	Closed  int
	Skipped int
	Failed  int
}

// Keeper settles raffles whose deadline has passed: it draws a winner when
// the minimum ticket count was reached and closes raffles nobody entered.
// Raffles that sold some tickets but missed the minimum are left alone.
type Keeper struct {
	settler   Settler
	identity  models.Identity
	oracleRef string
	batchSize int

	mu sync.Mutex
}

// New returns a Keeper that draws with oracleRef and signs as identity.
func New(settler Settler, identity models.Identity, oracleRef string) *Keeper {
	return &Keeper{
		settler:   settler,
		identity:  identity,
		oracleRef: oracleRef,
		batchSize: DefaultBatchSize,
	}
}

// Sweep runs one settlement pass. A sweep that starts while another is still
// running returns immediately with an empty report.
func (k *Keeper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	if !k.mu.TryLock() {
		logger.Warningf("keeper: previous sweep still running, skipping")
		return report, nil
	}
	defer k.mu.Unlock()

	due, err := k.settler.DueForSettlement(ctx, k.batchSize)
	if err != nil {
		return report, err
	}
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		switch {
		case len(r.Participants) == 0:
			k.close(ctx, r.ID, &report)
		case r.TotalEntries < uint64(r.MinTickets):
			// left for the seller to cancel and buyers to refund
			report.Skipped++
		default:
			k.draw(ctx, r.ID, &report)
		}
	}
	if len(due) > 0 {
		logger.Infof("keeper: sweep drew %d, closed %d, skipped %d, failed %d",
			report.Drawn, report.Closed, report.Skipped, report.Failed)
	}
	return report, nil
}

func (k *Keeper) draw(ctx context.Context, id uint64, report *Report) {
	_, err := k.settler.DrawWinner(ctx, id, k.oracleRef, k.identity)
	switch {
	case err == nil:
		report.Drawn++
	case errors.Is(err, services.ErrAlreadyClaimed), errors.Is(err, services.ErrRaffleNotActive):
		// settled by someone else since the listing
		report.Skipped++
	case services.Classify(err) == services.KindOracle:
		// the feed may be fresh on the next pass
		logger.Warningf("keeper: raffle %d not drawn: %v", id, err)
		report.Skipped++
	default:
		logger.Errorf("keeper: raffle %d draw failed: %v", id, err)
		report.Failed++
	}
}

func (k *Keeper) close(ctx context.Context, id uint64, report *Report) {
	_, err := k.settler.CloseExpired(ctx, id)
	switch {
	case err == nil:
		report.Closed++
	case errors.Is(err, services.ErrRaffleNotActive), errors.Is(err, services.ErrInvalidRaffleState):
		report.Skipped++
	default:
		logger.Errorf("keeper: raffle %d close failed: %v", id, err)
		report.Failed++
	}
}

// Schedule registers the sweep on the runner.
func (k *Keeper) Schedule(r *Runner, spec string) error {
	_, err := r.Add(spec, func(ctx context.Context) {
		if _, err := k.Sweep(ctx); err != nil {
			logger.Errorf("keeper: sweep failed: %v", err)
		}
	})
	return err
}
