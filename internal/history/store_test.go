package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/repo/memory"
)

func newStore(t *testing.T, hosts ...string) *Store {
	t.Helper()
	mem := memory.New()
	for _, h := range hosts {
		if err := mem.AddSite(context.Background(), &domain.Site{Host: h}); err != nil {
			t.Fatalf("AddSite: %v", err)
		}
	}
	return New(mem)
}

func appendSeq(t *testing.T, s *Store, host string, base time.Time, outcomes ...domain.Outcome) []domain.ProbeResult {
	t.Helper()
	out := make([]domain.ProbeResult, 0, len(outcomes))
	for i, o := range outcomes {
		r := domain.ProbeResult{Host: host, Outcome: o, Timestamp: base.Add(time.Duration(i) * time.Hour)}
		if err := s.Append(context.Background(), &r); err != nil {
			t.Fatalf("Append: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestLastFailPeriod_SuccessFailFail(t *testing.T) {
	s := newStore(t, "a.com")
	rs := appendSeq(t, s, "a.com", time.Now().Add(-3*time.Hour),
		domain.OutcomeSuccess, domain.OutcomeFail, domain.OutcomeFail)

	fp, err := s.LastFailPeriod(context.Background(), "a.com")
	if err != nil {
		t.Fatalf("LastFailPeriod: %v", err)
	}
	if fp == nil {
		t.Fatal("want a fail period")
	}
	if fp.Start.ID != rs[1].ID || fp.End.ID != rs[2].ID {
		t.Fatalf("want (%d,%d), got (%d,%d)", rs[1].ID, rs[2].ID, fp.Start.ID, fp.End.ID)
	}
}

func TestLastFailPeriod_NoHistory(t *testing.T) {
	s := newStore(t, "a.com")
	fp, err := s.LastFailPeriod(context.Background(), "a.com")
	if err != nil || fp != nil {
		t.Fatalf("want nil,nil got %+v %v", fp, err)
	}
}

func TestPreviousConclusive_SkipsNoConnectivity(t *testing.T) {
	s := newStore(t, "a.com")
	rs := appendSeq(t, s, "a.com", time.Now().Add(-4*time.Hour),
		domain.OutcomeSuccess, domain.OutcomeNoConnectivity, domain.OutcomeFail)

	prev, err := s.PreviousConclusive(context.Background(), rs[2])
	if err != nil {
		t.Fatalf("PreviousConclusive: %v", err)
	}
	if prev == nil || prev.ID != rs[0].ID {
		t.Fatalf("want SUCCESS entry %d, got %+v", rs[0].ID, prev)
	}

	first, err := s.PreviousConclusive(context.Background(), rs[0])
	if err != nil || first != nil {
		t.Fatalf("first entry has no predecessor: %+v %v", first, err)
	}
}

func TestAppend_ConcurrentSameHostKeepsEveryEntry(t *testing.T) {
	s := newStore(t, "a.com", "b.com")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			host := "a.com"
			if i%2 == 1 {
				host = "b.com"
			}
			r := domain.ProbeResult{Host: host, Outcome: domain.OutcomeSuccess}
			if err := s.Append(context.Background(), &r); err != nil {
				t.Errorf("Append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	a, _ := s.Results(context.Background(), "a.com")
	b, _ := s.Results(context.Background(), "b.com")
	if len(a) != 25 || len(b) != 25 {
		t.Fatalf("want 25/25, got %d/%d", len(a), len(b))
	}
	for i := 1; i < len(a); i++ {
		if a[i].Timestamp.Before(a[i-1].Timestamp) {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestPurgeBefore_NeverDropsLatest(t *testing.T) {
	s := newStore(t, "a.com")
	old := time.Now().Add(-90 * 24 * time.Hour)
	rs := appendSeq(t, s, "a.com", old, domain.OutcomeFail, domain.OutcomeFail)

	if _, err := s.PurgeBefore(context.Background(), time.Now()); err != nil {
		t.Fatalf("PurgeBefore: %v", err)
	}
	last, err := s.LastResult(context.Background(), "a.com")
	if err != nil || last == nil || last.ID != rs[1].ID {
		t.Fatalf("latest entry must survive purge: %+v %v", last, err)
	}
}

func TestHostLock_StableAndBounded(t *testing.T) {
	s := New(nil)
	if s.hostLock("a.com") != s.hostLock("a.com") {
		t.Fatal("same host must map to the same lock")
	}
	seen := map[*sync.Mutex]bool{}
	for i := 0; i < 1000; i++ {
		seen[s.hostLock(fmt.Sprintf("site-%d.example", i))] = true
	}
	if len(seen) > lockStripes {
		t.Fatalf("want at most %d locks, got %d", lockStripes, len(seen))
	}
}
