package netstate

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

// Checker reports whether the monitoring host itself is online.
type Checker interface {
	Available(ctx context.Context) bool
}

// Static is a fixed answer, used when connectivity checks are disabled.
type Static bool

func (s Static) Available(context.Context) bool { return bool(s) }

type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Monitor dials a well-known TCP endpoint and caches the answer for TTL.
type Monitor struct {
	target  string
	timeout time.Duration
	ttl     time.Duration
	dial    DialFunc
	now     func() time.Time

	mu        sync.Mutex
	checkedAt time.Time
	last      bool
}

func NewMonitor(target string, timeout, ttl time.Duration) *Monitor {
	target = strings.TrimSpace(target)
	if target == "" {
		target = "1.1.1.1"
	}
	if !strings.Contains(target, ":") {
		target = net.JoinHostPort(target, "53")
	}
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	d := &net.Dialer{}
	return &Monitor{
		target:  target,
		timeout: timeout,
		ttl:     ttl,
		dial:    d.DialContext,
		now:     time.Now,
	}
}

func (m *Monitor) Target() string { return m.target }

func (m *Monitor) Available(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.ttl > 0 && !m.checkedAt.IsZero() && now.Sub(m.checkedAt) < m.ttl {
		return m.last
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	conn, err := m.dial(cctx, "tcp", m.target)
	m.last = err == nil
	if conn != nil {
		_ = conn.Close()
	}
	m.checkedAt = now
	return m.last
}
