package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

type Kind string

const (
	SiteProbeStarted         Kind = "site_probe_started"
	SiteProbeEnded           Kind = "site_probe_ended"
	SchedulerNextFireChanged Kind = "scheduler_next_fire_changed"
	NotificationRequested    Kind = "notification_requested"
	RefreshRequested         Kind = "refresh_requested"
)

// Event is what UIs and widgets consume. Only the fields relevant to Kind are set.
type Event struct {
	Kind     Kind                `json:"kind"`
	At       time.Time           `json:"at"`
	RunID    string              `json:"run_id,omitempty"`
	Host     string              `json:"host,omitempty"`
	Result   *domain.ProbeResult `json:"result,omitempty"`
	NextFire *time.Time          `json:"next_fire,omitempty"`
	Title    string              `json:"title,omitempty"`
	Body     string              `json:"body,omitempty"`
}

type Publisher interface {
	Publish(ev Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	log *zap.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log, subs: make(map[int]chan Event)}
}

func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("event_dropped", zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Recorder keeps every published event; handy in tests and for replay.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Multi publishes to every non-nil publisher in order.
type Multi []Publisher

func (m Multi) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}
