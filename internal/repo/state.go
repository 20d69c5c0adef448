package repo

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// NextFireToMillis encodes a next fire time the way all adapters persist it:
// unix milliseconds, 0 for none.
func NextFireToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func NextFireFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// StateCloser is a StateStore backed by its own connection.
type StateCloser interface {
	StateStore
	Close() error
}

type splitStore struct {
	Store
	state StateCloser
}

// WithState keeps sites and history in base and moves the scheduler state
// to state. Close closes both.
func WithState(base Store, state StateCloser) Store {
	return &splitStore{Store: base, state: state}
}

func (s *splitStore) LoadNextFire(ctx context.Context) (time.Time, error) {
	return s.state.LoadNextFire(ctx)
}

func (s *splitStore) SaveNextFire(ctx context.Context, at time.Time) error {
	return s.state.SaveNextFire(ctx, at)
}

func (s *splitStore) Close() error {
	return multierr.Append(s.state.Close(), s.Store.Close())
}
