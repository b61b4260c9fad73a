package keeper

import (
	"context"

	"github.com/google/logger"
	"github.com/robfig/cron/v3"
)

// Runner schedules jobs on a cron and hands each run the base context.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

// NewRunner returns a stopped runner whose cron specs include seconds.
func NewRunner(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		baseCtx: baseCtx,
	}
}

// Add schedules job on spec.
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// Start runs the scheduler in its own goroutine.
func (r *Runner) Start() {
	logger.Infof("cron started with %d jobs", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	logger.Infof("cron stopped")
}
