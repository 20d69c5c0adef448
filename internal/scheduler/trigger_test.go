package scheduler

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func TestFirstThenEvery(t *testing.T) {
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	s := firstThenEvery{first: base.Add(3 * time.Minute), every: cron.Every(10 * time.Minute)}

	if got := s.Next(base); !got.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("first: %v", got)
	}
	after := base.Add(3 * time.Minute)
	if got := s.Next(after); !got.Equal(after.Add(10 * time.Minute)) {
		t.Fatalf("then: %v", got)
	}
}

func TestCronTrigger_RegisterCancel(t *testing.T) {
	c := NewCron(zap.NewNop())
	tr := NewCronTrigger(c)

	if err := tr.Register(time.Now().Add(time.Hour), 0, func() {}); err == nil {
		t.Fatal("want error for zero interval")
	}
	if !tr.Next().IsZero() {
		t.Fatal("unregistered trigger has no next fire")
	}

	if err := tr.Register(time.Now().Add(time.Hour), time.Minute, func() {}); err != nil {
		t.Fatal(err)
	}
	// re-registering replaces the entry
	if err := tr.Register(time.Now().Add(2*time.Hour), time.Minute, func() {}); err != nil {
		t.Fatal(err)
	}
	if n := len(c.Entries()); n != 1 {
		t.Fatalf("want 1 entry, got %d", n)
	}

	tr.Cancel()
	tr.Cancel()
	if n := len(c.Entries()); n != 0 {
		t.Fatalf("want 0 entries, got %d", n)
	}
}

func TestCronTrigger_Fires(t *testing.T) {
	c := NewCron(zap.NewNop())
	c.Start()
	defer c.Stop()

	tr := NewCronTrigger(c)
	fired := make(chan struct{}, 1)
	if err := tr.Register(time.Now().Add(50*time.Millisecond), time.Hour, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("trigger never fired")
	}
}
