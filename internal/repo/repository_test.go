package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/sitemonitor/internal/repo"
	"github.com/hamed0406/sitemonitor/internal/repo/memory"
	pg "github.com/hamed0406/sitemonitor/internal/repo/postgres"
	rds "github.com/hamed0406/sitemonitor/internal/repo/redis"
	"github.com/hamed0406/sitemonitor/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.Store = memory.New()
	var _ repo.Store = (*sqlite.Store)(nil)
	var _ repo.Store = (*pg.Store)(nil)
	var _ repo.StateStore = (*rds.StateStore)(nil)
}

func TestNextFireMillis(t *testing.T) {
	if repo.NextFireToMillis(time.Time{}) != 0 {
		t.Fatal("zero time must encode as 0")
	}
	if !repo.NextFireFromMillis(0).IsZero() {
		t.Fatal("0 must decode as zero time")
	}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if got := repo.NextFireFromMillis(repo.NextFireToMillis(at)); !got.Equal(at) {
		t.Fatalf("got %v want %v", got, at)
	}
}

type memState struct {
	at     time.Time
	closed bool
}

func (m *memState) LoadNextFire(context.Context) (time.Time, error) { return m.at, nil }
func (m *memState) SaveNextFire(_ context.Context, at time.Time) error {
	m.at = at
	return nil
}
func (m *memState) Close() error {
	m.closed = true
	return errors.New("state close")
}

func TestWithState_RoutesSchedulerState(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	st := &memState{}
	s := repo.WithState(base, st)

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if err := s.SaveNextFire(ctx, at); err != nil {
		t.Fatal(err)
	}
	if !st.at.Equal(at) {
		t.Fatal("next fire not routed to the state store")
	}
	if got, _ := base.LoadNextFire(ctx); !got.IsZero() {
		t.Fatal("base store must not see the next fire")
	}
	if err := s.Close(); err == nil || !st.closed {
		t.Fatalf("close should reach the state store and report its error, got %v", err)
	}
}
