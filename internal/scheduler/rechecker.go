package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/events"
	"github.com/hamed0406/sitemonitor/internal/netstate"
	"github.com/hamed0406/sitemonitor/internal/notify"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

type SiteLister interface {
	ListSites(ctx context.Context) ([]domain.Site, error)
}

type ResultAppender interface {
	Append(ctx context.Context, r *domain.ProbeResult) error
}

type RunRecorder interface {
	RecordRunCompleted(ctx context.Context)
}

// Settings are the user-facing notification preferences.
type Settings struct {
	NotificationsEnabled   bool `json:"notifications_enabled"`
	LimitToNewFailuresOnly bool `json:"limit_to_new_failures_only"`
}

// Report summarizes one monitor run.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Skipped  bool      `json:"skipped,omitempty"`
	Probed   int       `json:"probed"`
	Offline  bool      `json:"offline,omitempty"`
	Failures []string  `json:"failures,omitempty"`
	Notified bool      `json:"notified"`
	Title    string    `json:"title,omitempty"`
	Body     string    `json:"body,omitempty"`
}

// Rechecker runs one monitoring cycle over every site: probe, append,
// decide, notify, then refresh the schedule.
type Rechecker struct {
	Logger       *zap.Logger
	Sites        SiteLister
	History      ResultAppender
	Prober       probe.Prober
	Connectivity netstate.Checker
	Decider      *Decider
	Notifier     notify.Notifier
	Events       events.Publisher
	Schedule     RunRecorder
	Concurrency  int
	Timeout      time.Duration

	mu       sync.RWMutex
	settings Settings
	running  atomic.Bool
}

func NewRechecker(
	logger *zap.Logger,
	sites SiteLister,
	history ResultAppender,
	prober probe.Prober,
	connectivity netstate.Checker,
	decider *Decider,
	notifier notify.Notifier,
	pub events.Publisher,
	schedule RunRecorder,
	concurrency int,
	settings Settings,
) *Rechecker {
	if concurrency < 1 {
		concurrency = 1
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Rechecker{
		Logger:       logger,
		Sites:        sites,
		History:      history,
		Prober:       prober,
		Connectivity: connectivity,
		Decider:      decider,
		Notifier:     notifier,
		Events:       pub,
		Schedule:     schedule,
		Concurrency:  concurrency,
		Timeout:      time.Duration(probe.MaxAttempts)*(probe.DefaultConnectTimeout+probe.DefaultReadTimeout) + 5*time.Second,
		settings:     settings,
	}
}

func (r *Rechecker) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

func (r *Rechecker) SetSettings(s Settings) {
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
}

// Run is the Scheduler callback.
func (r *Rechecker) Run(ctx context.Context) {
	r.RunOnce(ctx)
}

// RunOnce probes every site once. A call made while another run is in
// flight returns immediately with Skipped set.
func (r *Rechecker) RunOnce(ctx context.Context) Report {
	rep := Report{RunID: uuid.NewString(), Started: time.Now().UTC()}
	if !r.running.CompareAndSwap(false, true) {
		rep.Skipped = true
		rep.Finished = rep.Started
		r.Logger.Info("rechecker_skipped_busy", zap.String("run_id", rep.RunID))
		return rep
	}
	defer r.running.Store(false)

	log := r.Logger.With(zap.String("run_id", rep.RunID))
	defer func() {
		if r.Schedule != nil {
			r.Schedule.RecordRunCompleted(ctx)
		}
		r.Events.Publish(events.Event{Kind: events.RefreshRequested, RunID: rep.RunID})
		rep.Finished = time.Now().UTC()
		log.Info("rechecker_run_finished",
			zap.Int("probed", rep.Probed),
			zap.Int("failures", len(rep.Failures)),
			zap.Bool("notified", rep.Notified),
			zap.Duration("took", rep.Finished.Sub(rep.Started)),
		)
	}()

	sites, err := r.Sites.ListSites(ctx)
	if err != nil {
		log.Warn("rechecker_list_error", zap.Error(err))
		return rep
	}
	if len(sites) == 0 {
		return rep
	}

	online := r.Connectivity.Available(ctx)
	rep.Offline = !online
	if !online {
		log.Info("rechecker_offline")
	}

	failed := r.probeAll(ctx, log, rep.RunID, sites, online)
	rep.Probed = len(sites)
	if ctx.Err() != nil {
		return rep
	}

	var failures []Failure
	for _, f := range failed {
		if f != nil {
			failures = append(failures, *f)
			rep.Failures = append(rep.Failures, f.Site.Host)
		}
	}
	if len(failures) == 0 {
		return rep
	}

	settings := r.Settings()
	body, ok := r.Decider.Decide(ctx, failures, settings.LimitToNewFailuresOnly)
	rep.Title, rep.Body = Title(len(failures)), body
	if !ok || !settings.NotificationsEnabled {
		log.Info("rechecker_notification_suppressed",
			zap.String("body", body),
			zap.Bool("qualified", ok),
			zap.Bool("notifications_enabled", settings.NotificationsEnabled),
		)
		return rep
	}

	rep.Notified = true
	r.Events.Publish(events.Event{Kind: events.NotificationRequested, RunID: rep.RunID, Title: rep.Title, Body: body})
	if r.Notifier != nil {
		if err := r.Notifier.Send(ctx, rep.Title, body); err != nil {
			log.Warn("rechecker_notify_error", zap.Error(err))
		}
	}
	return rep
}

// probeAll runs the bounded pool. The returned slice is indexed like sites;
// nil entries did not fail.
func (r *Rechecker) probeAll(ctx context.Context, log *zap.Logger, runID string, sites []domain.Site, online bool) []*Failure {
	out := make([]*Failure, len(sites))
	sem := make(chan struct{}, r.Concurrency)
	var wg sync.WaitGroup

	for i, site := range sites {
		i, site := i, site
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()

			r.Events.Publish(events.Event{Kind: events.SiteProbeStarted, RunID: runID, Host: site.Host})

			cctx, cancel := context.WithTimeout(ctx, r.Timeout)
			res := r.Prober.Probe(cctx, site, online)
			cancel()

			if ctx.Err() != nil {
				// shutting down; the outcome says nothing about the site
				log.Info("rechecker_probe_aborted", zap.String("host", site.Host))
				r.Events.Publish(events.Event{Kind: events.SiteProbeEnded, RunID: runID, Host: site.Host})
				return
			}

			err := r.History.Append(ctx, &res)
			if err != nil {
				log.Warn("rechecker_append_error",
					zap.String("host", site.Host),
					zap.Error(err),
				)
			} else {
				log.Debug("rechecker_checked",
					zap.String("host", site.Host),
					zap.String("outcome", string(res.Outcome)),
					zap.String("detail", res.ErrorDetail),
				)
			}

			ended := res
			r.Events.Publish(events.Event{Kind: events.SiteProbeEnded, RunID: runID, Host: site.Host, Result: &ended})

			// a site deleted mid-run is no longer reported
			if res.IsFail() && !errors.Is(err, repo.ErrNotFound) {
				out[i] = &Failure{Site: site, Result: res}
			}
		}()
	}

	wg.Wait()
	return out
}
