package history

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo"
)

const lockStripes = 64

// Store is the per-site probe log. Appends for the same host are serialized
// through a fixed set of striped locks, so deleted hosts leave nothing behind.
type Store struct {
	backend repo.HistoryStore
	locks   [lockStripes]sync.Mutex
}

func New(backend repo.HistoryStore) *Store {
	return &Store{backend: backend}
}

func (s *Store) hostLock(host string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *Store) Append(ctx context.Context, r *domain.ProbeResult) error {
	l := s.hostLock(r.Host)
	l.Lock()
	defer l.Unlock()
	if err := s.backend.AppendResult(ctx, r); err != nil {
		return fmt.Errorf("append %s: %w", r.Host, err)
	}
	return nil
}

func (s *Store) LastResult(ctx context.Context, host string) (*domain.ProbeResult, error) {
	return s.backend.LastResult(ctx, host)
}

func (s *Store) Results(ctx context.Context, host string) ([]domain.ProbeResult, error) {
	return s.backend.ListResults(ctx, host)
}

// LastFailPeriod returns the current unbroken FAIL run, or nil.
func (s *Store) LastFailPeriod(ctx context.Context, host string) (*domain.FailPeriod, error) {
	rs, err := s.backend.ListResults(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("fail period %s: %w", host, err)
	}
	return domain.LastFailPeriod(rs), nil
}

// PreviousConclusive returns the newest SUCCESS or FAIL entry stored before
// current, skipping NO_CONNECTIVITY entries. nil means no such entry.
func (s *Store) PreviousConclusive(ctx context.Context, current domain.ProbeResult) (*domain.ProbeResult, error) {
	rs, err := s.backend.ListResults(ctx, current.Host)
	if err != nil {
		return nil, fmt.Errorf("previous result %s: %w", current.Host, err)
	}
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if current.ID != 0 && r.ID == current.ID {
			continue
		}
		if r.Timestamp.After(current.Timestamp) {
			continue
		}
		if r.Conclusive() {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.backend.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}
