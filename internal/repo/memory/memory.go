package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	sites    map[string]*domain.Site
	results  map[string][]domain.ProbeResult
	nextID   int64
	nextFire time.Time
}

func New() *Store {
	return &Store{
		sites:   make(map[string]*domain.Site),
		results: make(map[string][]domain.ProbeResult),
	}
}

func (m *Store) Close() error { return nil }

// ---- SiteStore ----

func (m *Store) AddSite(ctx context.Context, s *domain.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[s.Host]; ok {
		return repo.ErrDuplicate
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.sites[s.Host] = &cp
	return nil
}

func (m *Store) GetSite(ctx context.Context, host string) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[host]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Host < out[j].Host
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) UpdateSite(ctx context.Context, s *domain.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sites[s.Host]
	if !ok {
		return repo.ErrNotFound
	}
	cp := *s
	cp.CreatedAt = cur.CreatedAt
	m.sites[s.Host] = &cp
	return nil
}

func (m *Store) DeleteSite(ctx context.Context, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[host]; !ok {
		return repo.ErrNotFound
	}
	delete(m.sites, host)
	delete(m.results, host)
	return nil
}

func (m *Store) CountSites(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sites), nil
}

// ---- HistoryStore ----

func (m *Store) AppendResult(ctx context.Context, r *domain.ProbeResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[r.Host]; !ok {
		return repo.ErrNotFound
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	m.nextID++
	r.ID = m.nextID

	rs := append(m.results[r.Host], *r)
	// keep timestamp order even if a caller appends a slightly older probe
	for i := len(rs) - 1; i > 0 && rs[i].Timestamp.Before(rs[i-1].Timestamp); i-- {
		rs[i], rs[i-1] = rs[i-1], rs[i]
	}
	m.results[r.Host] = rs
	return nil
}

func (m *Store) LastResult(ctx context.Context, host string) (*domain.ProbeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.results[host]
	if len(rs) == 0 {
		return nil, nil
	}
	last := rs[len(rs)-1]
	return &last, nil
}

func (m *Store) ListResults(ctx context.Context, host string) ([]domain.ProbeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.results[host]
	out := make([]domain.ProbeResult, len(rs))
	copy(out, rs)
	return out, nil
}

func (m *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for host, rs := range m.results {
		if len(rs) == 0 {
			continue
		}
		kept := make([]domain.ProbeResult, 0, len(rs))
		for i, r := range rs {
			if r.Timestamp.Before(cutoff) && i != len(rs)-1 {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		m.results[host] = kept
	}
	return removed, nil
}

// ---- StateStore ----

func (m *Store) LoadNextFire(ctx context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextFire, nil
}

func (m *Store) SaveNextFire(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextFire = at
	return nil
}
