package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/vpnkit/core"
)

// ScheduleCron registers the sweep on a cron scheduler, for deployments that
// run a single engine instance without a job queue.
func ScheduleCron(c *cron.Cron, svc *core.Service, log logrus.FieldLogger, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if _, err := svc.ExpireSweep(context.Background(), time.Now()); err != nil {
			log.WithError(err).Error("scheduled expiry sweep failed")
		}
	})
}
