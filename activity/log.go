// Package activity records the side-effect events issued while processing scans,
// such as tickets created in project management tools.
//
// The log is append-only and keeps only the most recent entries; once it is full
// the oldest event is evicted first. It is safe for concurrent use.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of events retained by a Log created with New.
const DefaultCapacity = 50

// SourceGeneral marks events that are not tied to a single integration target.
const SourceGeneral = "General"

// Event is one entry in the activity log.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity overrides the number of retained events. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithClock sets the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// Log is a bounded, append-only event history.
type Log struct {
	mu       sync.RWMutex
	capacity int
	now      func() time.Time

	// events is a ring buffer; head is the index of the oldest entry.
	events []Event
	head   int
}

// New creates an empty log retaining DefaultCapacity events.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.events = make([]Event, 0, l.capacity)
	return l
}

// Append records a new event and returns it. When the log is full the oldest
// event is evicted.
func (l *Log) Append(source, message string) Event {
	ev := Event{
		ID:        uuid.New().String(),
		Timestamp: l.now(),
		Message:   message,
		Source:    source,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) < l.capacity {
		l.events = append(l.events, ev)
		return ev
	}
	l.events[l.head] = ev
	l.head = (l.head + 1) % l.capacity
	return ev
}

// Events returns the retained events in insertion order, oldest first.
func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Event, 0, len(l.events))
	out = append(out, l.events[l.head:]...)
	out = append(out, l.events[:l.head]...)
	return out
}

// Recent returns up to n events, newest first.
func (l *Log) Recent(n int) []Event {
	all := l.Events()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]Event, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Capacity returns the maximum number of retained events.
func (l *Log) Capacity() int {
	return l.capacity
}
