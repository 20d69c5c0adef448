package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) handleSchedulerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Scheduler.State())
}

type intervalPayload struct {
	Minutes int `json:"minutes"`
}

// handleReschedule accepts any integer; non-positive values reset to the
// default interval.
func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var p intervalPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	s.Scheduler.Reschedule(r.Context(), p.Minutes)
	writeJSON(w, http.StatusOK, s.Scheduler.State())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.Scheduler.Stop(r.Context())
	writeJSON(w, http.StatusOK, s.Scheduler.State())
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sig := chi.URLParam(r, "signal")
	switch sig {
	case "battery-low":
		s.Scheduler.OnBatteryLow(ctx)
	case "battery-okay":
		s.Scheduler.OnBatteryOkay(ctx)
	case "power-connected":
		s.Scheduler.OnPowerConnected(ctx)
	case "power-disconnected":
		s.Scheduler.OnPowerDisconnected(ctx)
	case "boot":
		s.Scheduler.OnDeviceBoot(ctx)
	default:
		writeError(w, http.StatusNotFound, "unknown signal")
		return
	}
	s.Logger.Info("api_signal", zap.String("signal", sig))
	writeJSON(w, http.StatusOK, s.Scheduler.State())
}

// handleRun runs the monitor synchronously. The run outlives a client that
// hangs up.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rep := s.Runner.RunOnce(context.WithoutCancel(r.Context()))
	status := http.StatusOK
	if rep.Skipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, rep)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runner.Settings())
}

type settingsPayload struct {
	NotificationsEnabled   *bool `json:"notifications_enabled"`
	LimitToNewFailuresOnly *bool `json:"limit_to_new_failures_only"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	cur := s.Runner.Settings()
	if p.NotificationsEnabled != nil {
		cur.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.LimitToNewFailuresOnly != nil {
		cur.LimitToNewFailuresOnly = *p.LimitToNewFailuresOnly
	}
	s.Runner.SetSettings(cur)
	s.Logger.Info("api_settings_updated",
		zap.Bool("notifications_enabled", cur.NotificationsEnabled),
		zap.Bool("limit_to_new_failures_only", cur.LimitToNewFailuresOnly),
	)
	writeJSON(w, http.StatusOK, cur)
}
