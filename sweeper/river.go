// Package sweeper schedules the expiry sweep: as a river periodic job when a
// job queue is configured, or on a cron scheduler for single-node runs.
package sweeper

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/core"
)

// SweepArgs carries no payload; the job always sweeps everything due.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return "entitlement_expire_sweep" }

// SweepWorker runs the engine's expiry sweep. The sweep is idempotent, so a
// retried or overlapping job is harmless.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	svc *core.Service
	log logrus.FieldLogger
}

func NewSweepWorker(svc *core.Service, log logrus.FieldLogger) *SweepWorker {
	return &SweepWorker{svc: svc, log: log}
}

func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	n, err := w.svc.ExpireSweep(ctx, time.Now())
	if err != nil {
		return err
	}
	w.log.WithField("expired", n).Debug("expiry sweep job done")
	return nil
}

// PeriodicJob enqueues a sweep at the given interval, including one on
// startup to catch up after downtime.
func PeriodicJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return SweepArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
