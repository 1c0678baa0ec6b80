package sink

import (
	"context"
	"orchestra/domain/event"
	"orchestra/errors"
	"sync"
)

// ConnectionSink is the outbound queue of one client connection.
// Consume is called by the room critical section and never blocks:
// a full queue closes the sink and the connection is evicted.
// A single writer drains Events, which keeps per-connection FIFO.
type ConnectionSink struct {
	events chan event.DomainEvent
	done   chan struct{}
	once   sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *ConnectionSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSlowConsumer
	default:
	}
	select {
	case s.events <- e:
		return nil
	default:
		s.Close()
		return errors.ErrSlowConsumer
	}
}

func (s *ConnectionSink) Events() <-chan event.DomainEvent {
	return s.events
}

// Done is closed once the sink stops accepting events.
func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent. The events channel stays open so a late Consume cannot panic.
func (s *ConnectionSink) Close() {
	s.once.Do(func() { close(s.done) })
}
