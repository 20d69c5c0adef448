package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// Failure is one FAIL outcome of the current run.
type Failure struct {
	Site   domain.Site
	Result domain.ProbeResult
}

type PreviousLookup interface {
	// PreviousConclusive returns the newest SUCCESS/FAIL stored before current.
	PreviousConclusive(ctx context.Context, current domain.ProbeResult) (*domain.ProbeResult, error)
}

// Decider decides whether this run's failures are worth an alert.
type Decider struct {
	history PreviousLookup
	log     *zap.Logger
	now     func() time.Time
	loc     *time.Location
}

func NewDecider(history PreviousLookup, log *zap.Logger) *Decider {
	return &Decider{history: history, log: log, now: time.Now, loc: time.Local}
}

// Title is the notification headline for n failing sites.
func Title(n int) string {
	return fmt.Sprintf("%d unreachable", n)
}

// BodySeparator joins site names in a notification body.
const BodySeparator = ","

// Decide returns the comma-joined names of every failing site and whether
// at least one of them qualifies for an alert.
func (d *Decider) Decide(ctx context.Context, failures []Failure, limitToNewFailuresOnly bool) (string, bool) {
	if len(failures) == 0 {
		return "", false
	}
	names := make([]string, 0, len(failures))
	qualified := false
	for _, f := range failures {
		names = append(names, f.Site.DisplayName())
		if !qualified && d.qualifies(ctx, f, limitToNewFailuresOnly) {
			qualified = true
		}
	}
	body := strings.Join(names, BodySeparator)
	if !qualified {
		return body, false
	}
	return body, true
}

func (d *Decider) qualifies(ctx context.Context, f Failure, limit bool) bool {
	if !f.Site.NotificationsEnabled {
		return false
	}
	if !limit {
		return true
	}
	prev, err := d.history.PreviousConclusive(ctx, f.Result)
	if err != nil {
		// unknown history counts as a new failure
		d.log.Warn("decider_history_error", zap.String("host", f.Site.Host), zap.Error(err))
		return true
	}
	switch {
	case prev == nil:
		return true
	case prev.IsSuccess():
		return true
	default:
		return d.beforeToday(prev.Timestamp)
	}
}

// beforeToday compares calendar dates in the decider's zone.
func (d *Decider) beforeToday(t time.Time) bool {
	now := d.now().In(d.loc)
	y, m, day := now.Date()
	startOfToday := time.Date(y, m, day, 0, 0, 0, 0, d.loc)
	return t.In(d.loc).Before(startOfToday)
}
