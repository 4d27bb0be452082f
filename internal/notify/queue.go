// Package notify holds transient, dismissible status messages. Every enqueue
// is independent: identical messages stack rather than merge.
package notify

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/spacesedan/sentiboard/internal/models"
)

const DefaultTTL = 5 * time.Second

type Config struct {
	TTL    time.Duration
	Clock  clockwork.Clock
	Logger *slog.Logger
}

type Queue struct {
	mu       sync.Mutex
	items    []models.Notification
	timers   map[string]clockwork.Timer
	onChange []func([]models.Notification)
	closed   bool

	ttl   time.Duration
	clock clockwork.Clock
	log   *slog.Logger
}

func NewQueue(cfg Config) *Queue {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Queue{
		timers: make(map[string]clockwork.Timer),
		ttl:    cfg.TTL,
		clock:  cfg.Clock,
		log:    cfg.Logger,
	}
}

// OnChange registers a callback invoked with the current list after every
// enqueue, dismissal or expiry. Callbacks run outside the queue lock.
func (q *Queue) OnChange(fn func([]models.Notification)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = append(q.onChange, fn)
}

// Enqueue appends n and schedules its removal after the TTL. Missing ID and
// CreatedAt are filled in.
func (q *Queue) Enqueue(n models.Notification) models.Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = q.clock.Now()
	}
	if n.Severity == "" {
		n.Severity = models.SeverityInfo
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return n
	}
	q.items = append(q.items, n)
	id := n.ID
	q.timers[id] = q.clock.AfterFunc(q.ttl, func() { q.expire(id) })
	snapshot, listeners := q.snapshotLocked()
	q.mu.Unlock()

	q.log.Info("[Notifications] "+n.Title,
		slog.String("severity", string(n.Severity)),
		slog.String("description", n.Description))
	notifyAll(listeners, snapshot)
	return n
}

func (q *Queue) Info(title, description string) models.Notification {
	return q.Enqueue(models.Notification{Title: title, Description: description, Severity: models.SeverityInfo})
}

func (q *Queue) Destructive(title, description string) models.Notification {
	return q.Enqueue(models.Notification{Title: title, Description: description, Severity: models.SeverityDestructive})
}

// Dismiss removes a notification immediately. It reports whether the id was
// still present.
func (q *Queue) Dismiss(id string) bool {
	return q.remove(id, true)
}

func (q *Queue) expire(id string) {
	q.remove(id, false)
}

func (q *Queue) remove(id string, stopTimer bool) bool {
	q.mu.Lock()
	idx := -1
	for i, n := range q.items {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items[:idx:idx], q.items[idx+1:]...)
	if t, ok := q.timers[id]; ok {
		if stopTimer {
			t.Stop()
		}
		delete(q.timers, id)
	}
	snapshot, listeners := q.snapshotLocked()
	q.mu.Unlock()

	notifyAll(listeners, snapshot)
	return true
}

// List returns the live notifications oldest first.
func (q *Queue) List() []models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.Notification(nil), q.items...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops all pending timers and drops remaining notifications.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	q.items = nil
	q.onChange = nil
	q.closed = true
}

func (q *Queue) snapshotLocked() ([]models.Notification, []func([]models.Notification)) {
	if len(q.onChange) == 0 {
		return nil, nil
	}
	return slices.Clone(q.items), slices.Clone(q.onChange)
}

func notifyAll(listeners []func([]models.Notification), items []models.Notification) {
	for _, fn := range listeners {
		fn(items)
	}
}
