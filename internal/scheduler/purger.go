package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type HistoryPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Purger trims probe history older than the retention window. The newest
// result of each site always survives.
type Purger struct {
	log       *zap.Logger
	history   HistoryPurger
	retention time.Duration
	now       func() time.Time
}

func NewPurger(log *zap.Logger, history HistoryPurger, retention time.Duration) *Purger {
	return &Purger{log: log, history: history, retention: retention, now: time.Now}
}

// PurgeOnce is a no-op when retention is not positive.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	cutoff := p.now().Add(-p.retention)
	n, err := p.history.PurgeBefore(ctx, cutoff)
	if err != nil {
		p.log.Warn("purge_error", zap.Error(err))
		return 0, err
	}
	p.log.Info("purge_done", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// Register adds the purge job to c using a standard cron spec such as
// "@daily" or "30 3 * * *".
func (p *Purger) Register(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = p.PurgeOnce(ctx)
	})
}
