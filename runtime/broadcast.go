package runtime

import (
	"context"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"time"
)

// Broadcaster delivers room events to connections and hands them to the permanent sinks.
// It is only ever called from inside a room critical section, which gives
// every connection the events of a room in commit order.
type Broadcaster struct {
	log          *slog.Logger
	domainEvents chan<- event.DomainEvent
	telemetry    chan<- event.Event
}

func NewBroadcaster(log *slog.Logger, domainEvents chan<- event.DomainEvent, telemetry chan<- event.Event) *Broadcaster {
	return &Broadcaster{log: log, domainEvents: domainEvents, telemetry: telemetry}
}

// publish numbers evt in the room history and delivers it to every connection
// registered to the slot at this instant.
func (b *Broadcaster) publish(ctx context.Context, slot *roomSlot, evt event.DomainEvent) {
	slot.seq++
	evt = event.WithSeq(evt, slot.seq)
	for pid, sink := range slot.sinks {
		b.deliver(ctx, slot, pid, sink, evt)
	}
	select {
	case b.domainEvents <- evt:
	default:
		b.log.Warn("Domain event channel full, event not persisted", "room_id", evt.RoomID())
		b.emit(event.Event{
			Type:      event.SinkFailedType,
			CreatedAt: time.Now().UTC(),
			Payload:   event.SinkFailed{SinkName: "domain_events", Room: evt.RoomID(), Error: "channel full"},
		})
	}
}

// deliver never blocks: a connection that cannot take the event is marked stale
// and evicted once the critical section is released.
func (b *Broadcaster) deliver(ctx context.Context, slot *roomSlot, pid meeting.ParticipantID, sink contract.EventSink, evt event.DomainEvent) {
	err := sink.Consume(ctx, evt)
	if err == nil {
		return
	}
	for _, e := range slot.stale {
		if e.Participant == pid && e.Sink == sink {
			return
		}
	}
	b.log.Warn("Delivery failed, evicting connection", "room_id", evt.RoomID(), "participant_id", pid, "error", err)
	slot.stale = append(slot.stale, contract.Eviction{Room: evt.RoomID(), Participant: pid, Sink: sink})
	b.emit(event.Event{
		Type:      event.DeliveryDroppedType,
		CreatedAt: time.Now().UTC(),
		Payload:   event.DeliveryDropped{Room: evt.RoomID(), Participant: pid, Reason: err.Error()},
	})
}

// emit sends a technical event without ever blocking a room.
func (b *Broadcaster) emit(e event.Event) {
	select {
	case b.telemetry <- e:
	default:
	}
}
