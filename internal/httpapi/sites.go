package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
	"github.com/hamed0406/sitemonitor/internal/sites"
)

type siteView struct {
	domain.Site
	LastResult *domain.ProbeResult `json:"last_result,omitempty"`
	FailPeriod *domain.FailPeriod  `json:"fail_period,omitempty"`
	// CertificateSuspect marks a site whose last failure was a TLS error
	// and which does not force certificate trust yet.
	CertificateSuspect bool `json:"certificate_suspect,omitempty"`
	// Unreachable marks a last failure without any TCP session, the case an
	// internal fallback URL is meant for.
	Unreachable bool `json:"unreachable,omitempty"`
}

func (s *Server) view(r *http.Request, site domain.Site) siteView {
	v := siteView{Site: site}
	ctx := r.Context()
	last, err := s.History.LastResult(ctx, site.Host)
	if err != nil {
		s.Logger.Warn("api_last_result_error", zap.String("host", site.Host), zap.Error(err))
		return v
	}
	v.LastResult = last
	if last != nil && last.IsFail() {
		if fp, err := s.History.LastFailPeriod(ctx, site.Host); err == nil {
			v.FailPeriod = fp
		}
		v.CertificateSuspect = last.IsCertificateError() && !site.ForcedCertificateTrust
		v.Unreachable = last.IsConnectFailure()
	}
	return v
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	list, err := s.Sites.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	out := make([]siteView, 0, len(list))
	for _, site := range list {
		out = append(out, s.view(r, site))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.Sites.Get(r.Context(), hostParam(r))
	if err != nil {
		s.siteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(r, *site))
}

type addPayload struct {
	Host                   string `json:"host"`
	Name                   string `json:"name"`
	NotificationsEnabled   *bool  `json:"notifications_enabled"`
	ForcedCertificateTrust bool   `json:"forced_certificate_trust"`
	InternalFallbackURL    string `json:"internal_fallback_url"`
}

func (s *Server) handleAddSite(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Host == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	notify := true
	if p.NotificationsEnabled != nil {
		notify = *p.NotificationsEnabled
	}
	site, err := s.Sites.Add(r.Context(), domain.Site{
		Host:                   p.Host,
		Name:                   p.Name,
		NotificationsEnabled:   notify,
		ForcedCertificateTrust: p.ForcedCertificateTrust,
		InternalFallbackURL:    p.InternalFallbackURL,
	})
	if err != nil {
		s.siteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"site":      site,
		"scheduler": s.Scheduler.State(),
	})
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	var p sites.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	site, err := s.Sites.Update(r.Context(), hostParam(r), p)
	if err != nil {
		s.siteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	if err := s.Sites.Delete(r.Context(), hostParam(r)); err != nil {
		s.siteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResults returns the history oldest first; ?limit=N keeps the newest N.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	host := hostParam(r)
	if _, err := s.Sites.Get(r.Context(), host); err != nil {
		s.siteError(w, err)
		return
	}
	res, err := s.History.Results(r.Context(), host)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		if n < len(res) {
			res = res[len(res)-n:]
		}
	}
	if res == nil {
		res = []domain.ProbeResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFailPeriod(w http.ResponseWriter, r *http.Request) {
	host := hostParam(r)
	if _, err := s.Sites.Get(r.Context(), host); err != nil {
		s.siteError(w, err)
		return
	}
	fp, err := s.History.LastFailPeriod(r.Context(), host)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	if fp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

// hostParam returns the {host} segment unescaped. Hosts stored with a
// scheme arrive as "https:%2F%2Fa.example" because chi routes on RawPath.
func hostParam(r *http.Request) string {
	raw := chi.URLParam(r, "host")
	if h, err := url.PathUnescape(raw); err == nil {
		return h
	}
	return raw
}

func (s *Server) siteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repo.ErrDuplicate):
		writeError(w, http.StatusConflict, "site already exists")
	case errors.Is(err, sites.ErrInvalidHost):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.Logger.Warn("api_site_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
