package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/sitemonitor/internal/events"
	"github.com/hamed0406/sitemonitor/internal/history"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
	"github.com/hamed0406/sitemonitor/internal/sites"
)

type Server struct {
	Logger    *zap.Logger
	Sites     *sites.Service
	History   *history.Store
	Scheduler *scheduler.Scheduler
	Runner    *scheduler.Rechecker
	Bus       *events.Bus

	upgrader websocket.Upgrader
}

func NewServer(l *zap.Logger, ss *sites.Service, hs *history.Store, sched *scheduler.Scheduler, runner *scheduler.Rechecker, bus *events.Bus) *Server {
	return &Server{Logger: l, Sites: ss, History: hs, Scheduler: sched, Runner: runner, Bus: bus}
}

// Router wires every route. Empty origins allow any origin; a non-positive
// rpm disables that limiter.
func (s *Server) Router(keys apimw.Keys, origins []string, publicRPM, publicBurst, adminRPM, adminBurst int) http.Handler {
	s.upgrader = websocket.Upgrader{CheckOrigin: originChecker(origins)}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(apimw.RateLimit(publicRPM, publicBurst))

		api.Group(func(pub chi.Router) {
			pub.Use(apimw.RequireAny(keys))
			pub.Get("/sites", s.handleListSites)
			pub.Get("/sites/{host}", s.handleGetSite)
			pub.Get("/sites/{host}/results", s.handleResults)
			pub.Get("/sites/{host}/fail-period", s.handleFailPeriod)
			pub.Get("/scheduler", s.handleSchedulerState)
			pub.Get("/settings", s.handleGetSettings)
			pub.Get("/events", s.handleEvents)
		})

		api.Group(func(adm chi.Router) {
			adm.Use(apimw.RequireAdmin(keys))
			adm.Use(apimw.RateLimit(adminRPM, adminBurst))
			adm.Post("/sites", s.handleAddSite)
			adm.Patch("/sites/{host}", s.handleUpdateSite)
			adm.Delete("/sites/{host}", s.handleDeleteSite)
			adm.Put("/scheduler/interval", s.handleReschedule)
			adm.Post("/scheduler/stop", s.handleStop)
			adm.Post("/signals/{signal}", s.handleSignal)
			adm.Post("/run", s.handleRun)
			adm.Put("/settings", s.handlePutSettings)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
