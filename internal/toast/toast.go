// Package toast is a short-lived notice queue. Notices expire on their own
// after a fixed interval and can be dismissed early.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/stojala/internal/metrics"
)

// Severity of a notice.
type Severity string

// Notice severities.
const (
	Success Severity = "success"
	Error   Severity = "error"
)

// Defaults for NewQueue.
const (
	DefaultTTL   = 3 * time.Second
	DefaultLimit = 20
)

// Notice is one queued message.
type Notice struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Queue holds notices in the order they were shown.
type Queue struct {
	ttl   time.Duration
	limit int
	now   func() time.Time

	mu        sync.Mutex
	notices   []Notice
	timers    map[string]*time.Timer
	listeners map[int]func([]Notice)
	nextID    int
}

// NewQueue returns a queue whose notices live for ttl. At most limit notices
// are kept; the oldest is dropped first. Zero values select the defaults.
func NewQueue(ttl time.Duration, limit int) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Queue{
		ttl:       ttl,
		limit:     limit,
		now:       time.Now,
		timers:    make(map[string]*time.Timer),
		listeners: make(map[int]func([]Notice)),
	}
}

// Show queues a notice and returns it.
func (q *Queue) Show(message string, severity Severity) Notice {
	now := q.now()
	n := Notice{
		ID:        uuid.NewString(),
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}

	q.mu.Lock()
	q.notices = append(q.notices, n)
	for len(q.notices) > q.limit {
		q.stopLocked(q.notices[0].ID)
		q.notices = q.notices[1:]
	}
	q.timers[n.ID] = time.AfterFunc(q.ttl, func() { q.Dismiss(n.ID) })
	q.mu.Unlock()

	metrics.IncNotice(string(severity))
	q.notify()
	return n
}

// ShowSuccess queues a success notice.
func (q *Queue) ShowSuccess(message string) Notice { return q.Show(message, Success) }

// ShowError queues an error notice.
func (q *Queue) ShowError(message string) Notice { return q.Show(message, Error) }

// Dismiss removes a notice. It reports whether the notice was present.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	idx := -1
	for i, n := range q.notices {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	q.stopLocked(id)
	q.notices = append(q.notices[:idx:idx], q.notices[idx+1:]...)
	q.mu.Unlock()

	q.notify()
	return true
}

func (q *Queue) stopLocked(id string) {
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
}

// List returns the current notices, oldest first.
func (q *Queue) List() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Notice(nil), q.notices...)
}

// OnChange calls fn with the current notices after every change. The
// returned function removes the listener.
func (q *Queue) OnChange(fn func([]Notice)) func() {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.listeners[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.listeners, id)
		q.mu.Unlock()
	}
}

// Close stops all pending expiry timers.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id := range q.timers {
		q.stopLocked(id)
	}
}

func (q *Queue) notify() {
	q.mu.Lock()
	notices := append([]Notice(nil), q.notices...)
	fns := make([]func([]Notice), 0, len(q.listeners))
	for _, fn := range q.listeners {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	for _, fn := range fns {
		fn(notices)
	}
}
