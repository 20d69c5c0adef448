package sites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

var ErrInvalidHost = errors.New("invalid host")

// Lifecycle is the part of the scheduler the site list drives.
type Lifecycle interface {
	StartIfNeeded(ctx context.Context) bool
	Stop(ctx context.Context)
}

type Service struct {
	log   *zap.Logger
	store repo.SiteStore
	sched Lifecycle
}

func NewService(log *zap.Logger, store repo.SiteStore, sched Lifecycle) *Service {
	return &Service{log: log, store: store, sched: sched}
}

// Patch holds the editable fields; nil leaves a field unchanged.
type Patch struct {
	Name                   *string `json:"name,omitempty"`
	NotificationsEnabled   *bool   `json:"notifications_enabled,omitempty"`
	ForcedCertificateTrust *bool   `json:"forced_certificate_trust,omitempty"`
	InternalFallbackURL    *string `json:"internal_fallback_url,omitempty"`
}

// NormalizeHost trims whitespace and a trailing slash. A value carrying a
// scheme is kept as given since the probe honours it.
func NormalizeHost(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	if strings.Contains(h, "://") {
		u, err := url.Parse(h)
		if err != nil || u.Host == "" {
			return "", ErrInvalidHost
		}
	}
	h = strings.TrimSuffix(h, "/")
	if h == "" || strings.ContainsAny(h, " \t\n") {
		return "", ErrInvalidHost
	}
	return h, nil
}

func validFallback(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Add registers a new site and makes sure monitoring is scheduled.
// The name defaults to the host.
func (s *Service) Add(ctx context.Context, site domain.Site) (*domain.Site, error) {
	host, err := NormalizeHost(site.Host)
	if err != nil {
		return nil, err
	}
	if !validFallback(site.InternalFallbackURL) {
		return nil, fmt.Errorf("%w: fallback url %q", ErrInvalidHost, site.InternalFallbackURL)
	}
	site.Host = host
	if strings.TrimSpace(site.Name) == "" {
		site.Name = host
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	if err := s.store.AddSite(ctx, &site); err != nil {
		return nil, fmt.Errorf("add site %s: %w", host, err)
	}
	s.log.Info("site_added", zap.String("host", host), zap.Bool("notifications", site.NotificationsEnabled))
	s.sched.StartIfNeeded(ctx)
	return &site, nil
}

func (s *Service) Get(ctx context.Context, host string) (*domain.Site, error) {
	return s.store.GetSite(ctx, host)
}

func (s *Service) List(ctx context.Context) ([]domain.Site, error) {
	return s.store.ListSites(ctx)
}

func (s *Service) Update(ctx context.Context, host string, p Patch) (*domain.Site, error) {
	cur, err := s.store.GetSite(ctx, host)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		cur.Name = strings.TrimSpace(*p.Name)
		if cur.Name == "" {
			cur.Name = cur.Host
		}
	}
	if p.NotificationsEnabled != nil {
		cur.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.ForcedCertificateTrust != nil {
		cur.ForcedCertificateTrust = *p.ForcedCertificateTrust
	}
	if p.InternalFallbackURL != nil {
		fb := strings.TrimSpace(*p.InternalFallbackURL)
		if !validFallback(fb) {
			return nil, fmt.Errorf("%w: fallback url %q", ErrInvalidHost, fb)
		}
		cur.InternalFallbackURL = fb
	}
	if err := s.store.UpdateSite(ctx, cur); err != nil {
		return nil, fmt.Errorf("update site %s: %w", host, err)
	}
	s.log.Info("site_updated", zap.String("host", host))
	return cur, nil
}

// Delete removes the site with its history and stops the scheduler once no
// site is left.
func (s *Service) Delete(ctx context.Context, host string) error {
	if err := s.store.DeleteSite(ctx, host); err != nil {
		return fmt.Errorf("delete site %s: %w", host, err)
	}
	s.log.Info("site_deleted", zap.String("host", host))
	n, err := s.store.CountSites(ctx)
	if err != nil {
		s.log.Warn("site_count_error", zap.Error(err))
		return nil
	}
	if n == 0 {
		s.sched.Stop(ctx)
	}
	return nil
}

// Import adds every seed site that is not registered yet and returns how
// many were new.
func (s *Service) Import(ctx context.Context, seed []domain.Site) (int, error) {
	added := 0
	for _, site := range seed {
		_, err := s.Add(ctx, site)
		switch {
		case err == nil:
			added++
		case errors.Is(err, repo.ErrDuplicate):
		default:
			return added, err
		}
	}
	return added, nil
}
