package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/config"
	"github.com/hamed0406/sitemonitor/internal/events"
	"github.com/hamed0406/sitemonitor/internal/history"
	"github.com/hamed0406/sitemonitor/internal/httpapi"
	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/sitemonitor/internal/logging"
	"github.com/hamed0406/sitemonitor/internal/netstate"
	"github.com/hamed0406/sitemonitor/internal/notify"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/repo"
	"github.com/hamed0406/sitemonitor/internal/repo/memory"
	pg "github.com/hamed0406/sitemonitor/internal/repo/postgres"
	rds "github.com/hamed0406/sitemonitor/internal/repo/redis"
	"github.com/hamed0406/sitemonitor/internal/repo/sqlite"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
	"github.com/hamed0406/sitemonitor/internal/sites"
)

func main() {
	cfg, dotenv := config.Load()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	if !dotenv {
		logger.Debug("dotenv_not_loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store_close_error", zap.Error(err))
		}
	}()

	bus := events.NewBus(logger)
	hist := history.New(store)

	c := scheduler.NewCron(logger)
	sched := scheduler.New(logger, store, store, scheduler.NewCronTrigger(c), bus, cfg.IntervalMinutes)
	if err := sched.Restore(ctx); err != nil {
		logger.Warn("scheduler_restore_error", zap.Error(err))
	}

	notifiers := notify.Multi{notify.Log{Logger: logger}}
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		notifiers = append(notifiers, s)
	}

	engine := probe.NewEngine(probe.Options{UserAgent: cfg.UserAgent})
	conn := netstate.NewMonitor(cfg.ConnectivityTarget, 3*time.Second, cfg.ConnectivityTTL)
	runner := scheduler.NewRechecker(logger, store, hist, engine, conn,
		scheduler.NewDecider(hist, logger), notifiers, bus, sched, cfg.MaxConcurrentProbes,
		scheduler.Settings{
			NotificationsEnabled:   cfg.NotificationsEnabled,
			LimitToNewFailuresOnly: cfg.LimitToNewFailuresOnly,
		})
	sched.SetRunner(ctx, runner.Run)

	purger := scheduler.NewPurger(logger, hist, cfg.Retention())
	if _, err := purger.Register(ctx, c, cfg.PurgeSchedule); err != nil {
		logger.Warn("purge_schedule_invalid", zap.String("spec", cfg.PurgeSchedule), zap.Error(err))
	}

	svc := sites.NewService(logger, store, sched)
	seed, err := config.LoadSites(cfg.SitesFile)
	if err != nil {
		logger.Warn("sites_file_error", zap.String("path", cfg.SitesFile), zap.Error(err))
	}
	if len(seed) > 0 {
		n, err := svc.Import(ctx, seed)
		if err != nil {
			logger.Warn("sites_import_error", zap.Error(err))
		}
		logger.Info("sites_imported", zap.Int("added", n), zap.Int("listed", len(seed)))
	}

	// re-arm from the persisted site count; a stale next fire is cleared
	// when there is nothing to monitor
	if !sched.OnDeviceBoot(ctx) {
		sched.Stop(ctx)
	}
	c.Start()

	api := httpapi.NewServer(logger, svc, hist, sched, runner, bus)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.Time("next_fire", sched.State().NextFire))
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	// wait for a run in flight; the persisted next fire is left as is
	<-c.Stop().Done()
	logger.Info("stopped")
}

// openStore picks postgres, then sqlite, then memory. REDIS_URL moves only
// the scheduler state.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, error) {
	var base repo.Store
	switch {
	case cfg.DatabaseURL != "":
		s, err := pg.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store_selected", zap.String("kind", "postgres"))
		base = s
	case cfg.SQLitePath != "":
		s, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store_selected", zap.String("kind", "sqlite"), zap.String("path", cfg.SQLitePath))
		base = s
	default:
		logger.Warn("store_selected", zap.String("kind", "memory"))
		base = memory.New()
	}

	if cfg.RedisURL == "" {
		return base, nil
	}
	state, err := rds.New(ctx, cfg.RedisURL)
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	logger.Info("state_store_selected", zap.String("kind", "redis"))
	return repo.WithState(base, state), nil
}
