package agent

import (
	"sync"

	"github.com/loomlabs/loom/pkg/models"
)

// defaultStreamBuffer bounds the event channel. A slow consumer applies
// backpressure to the turn loop rather than growing memory without bound.
const defaultStreamBuffer = 256

// EventStream is the bounded FIFO the turn loop pushes progress events into,
// plus a single-slot mailbox for steering messages injected mid-run. Events
// are delivered in push order. One producer (the turn loop), one consumer
// (the transport).
type EventStream struct {
	events chan models.StreamEvent

	mu        sync.Mutex
	closed    bool
	injection string
	injected  bool
}

// NewEventStream creates a stream with the default buffer size.
func NewEventStream() *EventStream {
	return NewEventStreamSize(defaultStreamBuffer)
}

// NewEventStreamSize creates a stream with an explicit buffer size.
func NewEventStreamSize(size int) *EventStream {
	if size <= 0 {
		size = defaultStreamBuffer
	}
	return &EventStream{events: make(chan models.StreamEvent, size)}
}

// Events returns the consumer side of the stream.
func (s *EventStream) Events() <-chan models.StreamEvent { return s.events }

// Push delivers one event. Blocks when the consumer is behind. Pushing to a
// closed stream is a no-op so a racing close does not panic the loop.
func (s *EventStream) Push(event models.StreamEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.events <- event
}

// Close ends the stream. Safe to call more than once.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Inject places a steering message in the mailbox. A second injection before
// the loop consumes the first overwrites it; the mailbox holds one slot.
func (s *EventStream) Inject(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injection = text
	s.injected = true
}

// HasInjection reports whether a steering message is waiting.
func (s *EventStream) HasInjection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injected
}

// TakeInjection atomically removes and returns the waiting steering message.
func (s *EventStream) TakeInjection() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.injected {
		return "", false
	}
	text := s.injection
	s.injection = ""
	s.injected = false
	return text, true
}
