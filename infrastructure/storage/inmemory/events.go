package inmemory

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
)

const (
	// Default buffer size for error events.
	defaultEventBufferSize = 100
)

var (
	_ domain.EventRecorder = (*EventLog)(nil)
	_ domain.EventReader   = (*EventLog)(nil)
)

// EventLog keeps the most recent error events, evicting the oldest when full.
type EventLog struct {
	mu    sync.Mutex
	size  int
	items *queue.Queue
}

// NewEventLog creates an EventLog holding at most size events.
// A non-positive size selects the default.
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = defaultEventBufferSize
	}
	return &EventLog{size: size, items: queue.New()}
}

// AddError appends an event, dropping the oldest one if the log is full.
func (l *EventLog) AddError(event metrics.ErrorEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.items.Length() >= l.size {
		l.items.Remove()
	}
	l.items.Add(event)
}

// Errors returns all events in insertion order, never nil.
func (l *EventLog) Errors() []metrics.ErrorEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.items.Length()
	events := make([]metrics.ErrorEvent, n)
	for i := 0; i < n; i++ {
		events[i] = l.items.Get(i).(metrics.ErrorEvent)
	}
	return events
}
