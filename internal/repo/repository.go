package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Ports (interfaces): memory, sqlite and postgres adapters implement all three.
type SiteStore interface {
	// AddSite returns ErrDuplicate when the host is already registered.
	AddSite(ctx context.Context, s *domain.Site) error
	GetSite(ctx context.Context, host string) (*domain.Site, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
	UpdateSite(ctx context.Context, s *domain.Site) error
	// DeleteSite removes the site and its whole history.
	DeleteSite(ctx context.Context, host string) error
	CountSites(ctx context.Context) (int, error)
}

type HistoryStore interface {
	// AppendResult assigns r.ID. Existing rows are never rewritten.
	AppendResult(ctx context.Context, r *domain.ProbeResult) error
	// LastResult returns nil, nil when the host has no history yet.
	LastResult(ctx context.Context, host string) (*domain.ProbeResult, error)
	// ListResults returns the history ordered by timestamp, oldest first.
	ListResults(ctx context.Context, host string) ([]domain.ProbeResult, error)
	// PurgeBefore deletes results strictly older than cutoff, keeping the
	// newest result of every host, and returns the number removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StateStore persists the scheduler's next fire time. Zero means none.
type StateStore interface {
	LoadNextFire(ctx context.Context) (time.Time, error)
	SaveNextFire(ctx context.Context, at time.Time) error
}

type Store interface {
	SiteStore
	HistoryStore
	StateStore
	Close() error
}
