package workers

import (
	"context"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/event"
	"time"
)

// EventFanout hands every accepted room event to the permanent sinks (durable log, projections).
//
// A single worker drains the channel so sinks see the events of a room in commit order.
// Each sink call is bounded by sinkTimeout. A failing sink is reported to telemetry
// and never blocks nor rolls back the room that produced the event.
type EventFanout struct {
	log           *slog.Logger
	domainEvents  chan event.DomainEvent
	telemetryChan chan event.Event
	sinkTimeout   time.Duration
	sinks         []namedSink
}

type namedSink struct {
	name string
	sink contract.EventSink
}

func NewEventFanout(log *slog.Logger, domainEvents chan event.DomainEvent,
	telemetryChan chan event.Event, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:           log,
		domainEvents:  domainEvents,
		telemetryChan: telemetryChan,
		sinkTimeout:   sinkTimeout,
	}
}

func (w *EventFanout) Add(name string, sink contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, namedSink{name: name, sink: sink})
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.domainEvents:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping domain event fanout")
			return nil
		}
	}
}

// Fanout calls every sink, one after the other.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, s := range w.sinks {
		if err := w.consume(ctx, s.sink, evt); err != nil {
			w.log.Warn("Sink failed", "sink", s.name, "room_id", evt.RoomID(), "error", err)
			select {
			case w.telemetryChan <- event.Event{
				Type:      event.SinkFailedType,
				CreatedAt: time.Now().UTC(),
				Payload:   event.SinkFailed{SinkName: s.name, Room: evt.RoomID(), Error: err.Error()},
			}:
			default:
				w.log.Debug("Observability telemetry event lost")
			}
		}
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) error {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, evt)
}
