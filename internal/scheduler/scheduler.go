package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/events"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

const DefaultIntervalMinutes = 60

// catchUpDelay is how soon a fire missed while the process was down runs.
const catchUpDelay = 10 * time.Second

var ErrSchedulingFailure = errors.New("scheduling failure")

type SiteCounter interface {
	CountSites(ctx context.Context) (int, error)
}

// NormalizeInterval resets zero or negative values to the default.
func NormalizeInterval(minutes int) int {
	if minutes <= 0 {
		return DefaultIntervalMinutes
	}
	return minutes
}

// Scheduler owns the Trigger. Every transition runs under mu, so battery,
// boot and user driven calls cannot lose updates.
type Scheduler struct {
	log     *zap.Logger
	sites   SiteCounter
	state   repo.StateStore
	trigger Trigger
	events  events.Publisher
	now     func() time.Time

	mu             sync.Mutex
	interval       int
	scheduled      bool
	batteryLow     bool
	powerConnected bool
	suspended      bool // set by battery-low, cleared by battery-okay or power
	nextFire       time.Time
	lastErr        error
	gen            uint64
	runCtx         context.Context
	run            func(context.Context)
}

func New(log *zap.Logger, sites SiteCounter, state repo.StateStore, trigger Trigger, pub events.Publisher, intervalMinutes int) *Scheduler {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Scheduler{
		log:      log,
		sites:    sites,
		state:    state,
		trigger:  trigger,
		events:   pub,
		now:      time.Now,
		interval: NormalizeInterval(intervalMinutes),
		runCtx:   context.Background(),
	}
}

// SetRunner installs the callback invoked on every fire.
func (s *Scheduler) SetRunner(ctx context.Context, run func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runCtx = ctx
	s.run = run
}

// Restore loads the persisted next fire time so the first registration after
// a restart keeps the schedule the previous process announced.
func (s *Scheduler) Restore(ctx context.Context) error {
	at, err := s.state.LoadNextFire(ctx)
	if err != nil {
		return fmt.Errorf("restore next fire: %w", err)
	}
	s.mu.Lock()
	s.nextFire = at
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) vetoed() bool { return s.suspended }

// StartIfNeeded registers the Trigger when at least one site exists.
// It returns whether monitoring is scheduled afterwards.
func (s *Scheduler) StartIfNeeded(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Scheduler) startLocked(ctx context.Context) bool {
	if s.scheduled {
		return true
	}
	n, err := s.sites.CountSites(ctx)
	if err != nil {
		s.log.Warn("scheduler_count_sites_error", zap.Error(err))
		return false
	}
	if n == 0 {
		return false
	}
	if s.vetoed() {
		s.log.Info("scheduler_start_vetoed", zap.Bool("battery_low", s.batteryLow))
		return false
	}

	s.interval = NormalizeInterval(s.interval)
	every := time.Duration(s.interval) * time.Minute
	now := s.now()
	first := now.Add(every)
	if !s.nextFire.IsZero() {
		// restored from a previous process
		if s.nextFire.After(now) {
			first = s.nextFire
		} else {
			first = now.Add(catchUpDelay)
		}
	}

	s.gen++
	gen := s.gen
	if err := s.trigger.Register(first, every, func() { s.fire(gen) }); err != nil {
		s.lastErr = fmt.Errorf("%w: %v", ErrSchedulingFailure, err)
		s.log.Error("scheduler_register_failed", zap.Int("interval_minutes", s.interval), zap.Error(err))
		s.scheduled = false
		s.setNextFireLocked(ctx, time.Time{})
		return false
	}
	s.lastErr = nil
	s.scheduled = true
	s.setNextFireLocked(ctx, first)
	s.log.Info("scheduler_started",
		zap.Int("interval_minutes", s.interval),
		zap.Int("sites", n),
		zap.Time("next_fire", first),
	)
	return true
}

// Stop cancels the Trigger and clears the next fire time. Calling it when
// already stopped changes nothing.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx, "explicit")
}

func (s *Scheduler) stopLocked(ctx context.Context, reason string) {
	if !s.scheduled && s.nextFire.IsZero() {
		return
	}
	s.trigger.Cancel()
	s.gen++ // a fire already queued for the old registration is dropped
	s.scheduled = false
	s.setNextFireLocked(ctx, time.Time{})
	s.log.Info("scheduler_stopped", zap.String("reason", reason))
}

// Reschedule restarts the Trigger with a new interval. Invalid values fall
// back to the default.
func (s *Scheduler) Reschedule(ctx context.Context, minutes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = NormalizeInterval(minutes)
	s.stopLocked(ctx, "reschedule")
	return s.startLocked(ctx)
}

// OnBatteryLow always stops the Trigger, even on external power.
func (s *Scheduler) OnBatteryLow(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batteryLow = true
	s.suspended = true
	s.stopLocked(ctx, "battery_low")
}

func (s *Scheduler) OnBatteryOkay(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batteryLow = false
	s.suspended = false
	return s.startLocked(ctx)
}

// OnPowerConnected lifts a battery suspension and re-arms.
func (s *Scheduler) OnPowerConnected(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerConnected = true
	s.suspended = false
	return s.startLocked(ctx)
}

// OnPowerDisconnected re-applies the battery suspension if the battery was
// already low when power went away.
func (s *Scheduler) OnPowerDisconnected(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerConnected = false
	if s.batteryLow {
		s.suspended = true
		s.stopLocked(ctx, "battery_low")
	}
}

// OnDeviceBoot re-arms monitoring from the persisted site count.
func (s *Scheduler) OnDeviceBoot(ctx context.Context) bool {
	return s.StartIfNeeded(ctx)
}

// RecordRunCompleted recomputes and persists the next fire time after a run.
func (s *Scheduler) RecordRunCompleted(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scheduled {
		return
	}
	next := s.trigger.Next()
	if next.IsZero() || !next.After(s.now()) {
		next = s.now().Add(time.Duration(s.interval) * time.Minute)
	}
	s.setNextFireLocked(ctx, next)
}

func (s *Scheduler) State() domain.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.SchedulerState{
		IntervalMinutes: s.interval,
		NextFire:        s.nextFire,
		Scheduled:       s.scheduled,
		Suspended:       s.vetoed(),
		PowerConnected:  s.powerConnected,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) setNextFireLocked(ctx context.Context, at time.Time) {
	s.nextFire = at
	if err := s.state.SaveNextFire(ctx, at); err != nil {
		s.log.Warn("scheduler_persist_next_fire_error", zap.Error(err))
	}
	ev := events.Event{Kind: events.SchedulerNextFireChanged}
	if !at.IsZero() {
		t := at
		ev.NextFire = &t
	}
	s.events.Publish(ev)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if !s.scheduled || gen != s.gen || s.run == nil {
		s.mu.Unlock()
		return
	}
	ctx, run := s.runCtx, s.run
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	run(ctx)
}
