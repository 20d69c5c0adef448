package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger is the periodic timer behind the Scheduler. fire runs for the
// first time at first and then every interval until Cancel.
type Trigger interface {
	Register(first time.Time, interval time.Duration, fire func()) error
	Cancel()
	// Next is the upcoming fire time, zero when unknown or not registered.
	Next() time.Time
}

// NewCron builds the process-wide cron runner. Overlapping runs of the same
// job are skipped and panics are recovered and logged.
func NewCron(log *zap.Logger) *cron.Cron {
	l := cronLogger{l: log.Sugar()}
	return cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debugw("cron_"+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Errorw("cron_"+msg, append(kv, "error", err)...)
}

// firstThenEvery fires once at first, then at a constant delay.
type firstThenEvery struct {
	first time.Time
	every cron.ConstantDelaySchedule
}

func (s firstThenEvery) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}

// CronTrigger registers a single entry on a shared cron runner.
type CronTrigger struct {
	c *cron.Cron

	mu         sync.Mutex
	entry      cron.EntryID
	registered bool
}

func NewCronTrigger(c *cron.Cron) *CronTrigger {
	return &CronTrigger{c: c}
}

func (t *CronTrigger) Register(first time.Time, interval time.Duration, fire func()) error {
	if interval <= 0 {
		return errors.New("trigger interval must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registered {
		t.c.Remove(t.entry)
		t.registered = false
	}
	sched := firstThenEvery{first: first, every: cron.Every(interval)}
	t.entry = t.c.Schedule(sched, cron.FuncJob(fire))
	t.registered = true
	return nil
}

func (t *CronTrigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.registered {
		return
	}
	t.c.Remove(t.entry)
	t.registered = false
}

func (t *CronTrigger) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.registered {
		return time.Time{}
	}
	return t.c.Entry(t.entry).Next
}
