package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/events"
	"github.com/hamed0406/sitemonitor/internal/history"
	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/sitemonitor/internal/netstate"
	"github.com/hamed0406/sitemonitor/internal/notify"
	"github.com/hamed0406/sitemonitor/internal/repo/memory"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
	"github.com/hamed0406/sitemonitor/internal/sites"
)

// ---- test helpers ----

type fakeProber struct {
	mu  sync.Mutex
	out map[string]domain.Outcome
}

func (f *fakeProber) Probe(_ context.Context, s domain.Site, online bool) domain.ProbeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if f.out[s.Host] == domain.OutcomeFail {
		return domain.ProbeResult{Host: s.Host, Timestamp: now, Outcome: domain.OutcomeFail, ErrorDetail: "certificate_error: x509: unknown authority"}
	}
	code := 200
	return domain.ProbeResult{Host: s.Host, Timestamp: now, Outcome: domain.OutcomeSuccess, HTTPStatus: &code}
}

// nopTrigger accepts every registration and never fires.
type nopTrigger struct{}

func (nopTrigger) Register(time.Time, time.Duration, func()) error { return nil }
func (nopTrigger) Cancel()                                         {}
func (nopTrigger) Next() time.Time                                 { return time.Time{} }

type testEnv struct {
	ts     *httptest.Server
	prober *fakeProber
	sched  *scheduler.Scheduler
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	return setupWithOrigins(t, nil)
}

func setupWithOrigins(t *testing.T, origins []string) *testEnv {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	bus := events.NewBus(log)
	hist := history.New(store)
	sched := scheduler.New(log, store, store, nopTrigger{}, bus, 60)
	prober := &fakeProber{out: map[string]domain.Outcome{}}
	runner := scheduler.NewRechecker(log, store, hist, prober, netstate.Static(true),
		scheduler.NewDecider(hist, log), notify.Log{Logger: log}, bus, sched, 1,
		scheduler.Settings{NotificationsEnabled: true})
	srv := NewServer(log, sites.NewService(log, store, sched), hist, sched, runner, bus)

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, origins, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, prober: prober, sched: sched}
}

func (e *testEnv) do(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// ---- tests ----

func TestAddSite_OK_Duplicate_Invalid(t *testing.T) {
	env := setup(t)

	resp := env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "example.com"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	added := decode[struct {
		Site      domain.Site           `json:"site"`
		Scheduler domain.SchedulerState `json:"scheduler"`
	}](t, resp)
	if added.Site.Name != "example.com" || !added.Site.NotificationsEnabled {
		t.Fatalf("unexpected site %+v", added.Site)
	}
	if !added.Scheduler.Scheduled || added.Scheduler.NextFire.IsZero() {
		t.Fatalf("first site should schedule monitoring: %+v", added.Scheduler)
	}

	if resp := env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "example.com"}); resp.StatusCode != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "https://"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid host, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"name": "no host"}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 without host, got %d", resp.StatusCode)
	}
}

func TestRunListAndFailPeriod(t *testing.T) {
	env := setup(t)
	env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "ok.example"})
	env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "bad.example", "name": "Bad"})
	env.prober.out["bad.example"] = domain.OutcomeFail

	for i := 0; i < 2; i++ {
		resp := env.do(t, http.MethodPost, "/api/run", "adm_test", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("run: want 200, got %d", resp.StatusCode)
		}
		rep := decode[scheduler.Report](t, resp)
		if rep.Probed != 2 || len(rep.Failures) != 1 || rep.Title != "1 unreachable" || rep.Body != "Bad" {
			t.Fatalf("unexpected report %+v", rep)
		}
	}

	list := decode[[]struct {
		Host               string              `json:"host"`
		LastResult         *domain.ProbeResult `json:"last_result"`
		FailPeriod         *domain.FailPeriod  `json:"fail_period"`
		CertificateSuspect bool                `json:"certificate_suspect"`
	}](t, env.do(t, http.MethodGet, "/api/sites", "pub_test", nil))
	if len(list) != 2 {
		t.Fatalf("want 2 sites, got %d", len(list))
	}
	for _, s := range list {
		switch s.Host {
		case "ok.example":
			if s.LastResult == nil || !s.LastResult.IsSuccess() || s.FailPeriod != nil {
				t.Fatalf("ok.example: %+v", s)
			}
		case "bad.example":
			if s.FailPeriod == nil || s.FailPeriod.Start.ID == s.FailPeriod.End.ID || !s.CertificateSuspect {
				t.Fatalf("bad.example: %+v", s)
			}
		}
	}

	if resp := env.do(t, http.MethodGet, "/api/sites/ok.example/fail-period", "pub_test", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("want 204, got %d", resp.StatusCode)
	}
	fp := decode[domain.FailPeriod](t, env.do(t, http.MethodGet, "/api/sites/bad.example/fail-period", "pub_test", nil))
	if !fp.End.IsFail() {
		t.Fatalf("unexpected fail period %+v", fp)
	}

	res := decode[[]domain.ProbeResult](t, env.do(t, http.MethodGet, "/api/sites/bad.example/results?limit=1", "pub_test", nil))
	if len(res) != 1 {
		t.Fatalf("limit ignored: %d", len(res))
	}
	if resp := env.do(t, http.MethodGet, "/api/sites/missing.example/results", "pub_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

func TestPatchAndDeleteSite(t *testing.T) {
	env := setup(t)
	env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "a.example"})

	resp := env.do(t, http.MethodPatch, "/api/sites/a.example", "adm_test", map[string]any{"name": "Alpha", "notifications_enabled": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: want 200, got %d", resp.StatusCode)
	}
	s := decode[domain.Site](t, resp)
	if s.Name != "Alpha" || s.NotificationsEnabled {
		t.Fatalf("patch not applied: %+v", s)
	}

	if resp := env.do(t, http.MethodDelete, "/api/sites/a.example", "adm_test", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", resp.StatusCode)
	}
	if env.sched.State().Scheduled {
		t.Fatal("deleting the last site should stop the scheduler")
	}
	if resp := env.do(t, http.MethodGet, "/api/sites/a.example", "pub_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want 404 after delete, got %d", resp.StatusCode)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	env := setup(t)
	env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "a.example"})

	st := decode[domain.SchedulerState](t, env.do(t, http.MethodPut, "/api/scheduler/interval", "adm_test", map[string]int{"minutes": 5}))
	if st.IntervalMinutes != 5 || !st.Scheduled {
		t.Fatalf("reschedule: %+v", st)
	}

	st = decode[domain.SchedulerState](t, env.do(t, http.MethodPost, "/api/signals/battery-low", "adm_test", nil))
	if st.Scheduled || !st.Suspended {
		t.Fatalf("battery-low: %+v", st)
	}
	st = decode[domain.SchedulerState](t, env.do(t, http.MethodPost, "/api/signals/power-connected", "adm_test", nil))
	if !st.Scheduled {
		t.Fatalf("power-connected: %+v", st)
	}
	if resp := env.do(t, http.MethodPost, "/api/signals/reboot-now", "adm_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown signal: want 404, got %d", resp.StatusCode)
	}

	st = decode[domain.SchedulerState](t, env.do(t, http.MethodPost, "/api/scheduler/stop", "adm_test", nil))
	if st.Scheduled || !st.NextFire.IsZero() {
		t.Fatalf("stop: %+v", st)
	}
	st = decode[domain.SchedulerState](t, env.do(t, http.MethodGet, "/api/scheduler", "pub_test", nil))
	if st.Scheduled {
		t.Fatalf("state: %+v", st)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := setup(t)
	got := decode[scheduler.Settings](t, env.do(t, http.MethodPut, "/api/settings", "adm_test", map[string]bool{"limit_to_new_failures_only": true}))
	if !got.NotificationsEnabled || !got.LimitToNewFailuresOnly {
		t.Fatalf("partial update lost a field: %+v", got)
	}
	got = decode[scheduler.Settings](t, env.do(t, http.MethodGet, "/api/settings", "pub_test", nil))
	if !got.LimitToNewFailuresOnly {
		t.Fatalf("settings not persisted: %+v", got)
	}
}

func TestSiteWithSchemeIsAddressable(t *testing.T) {
	env := setup(t)
	if resp := env.do(t, http.MethodPost, "/api/sites", "adm_test", map[string]any{"host": "https://a.example"}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: want 201, got %d", resp.StatusCode)
	}
	path := "/api/sites/" + url.PathEscape("https://a.example")

	resp := env.do(t, http.MethodGet, path, "pub_test", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: want 200, got %d", resp.StatusCode)
	}
	if got := decode[domain.Site](t, resp); got.Host != "https://a.example" {
		t.Fatalf("unexpected host %q", got.Host)
	}
	if resp := env.do(t, http.MethodPatch, path, "adm_test", map[string]any{"name": "A"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: want 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, path+"/results", "pub_test", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("results: want 200, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, path, "adm_test", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, path, "pub_test", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: want 404, got %d", resp.StatusCode)
	}
}
