package runtime

import (
	"context"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"time"
)

// Relay forwards connection-setup signals between the members of a room.
// Delivery is fire-and-forget and happens outside the room critical section,
// so signals carry no ordering guarantee relative to token or phase events.
type Relay struct {
	log      *slog.Logger
	registry *Registry
	now      func() time.Time
}

func NewRelay(log *slog.Logger, registry *Registry) *Relay {
	return &Relay{log: log, registry: registry, now: func() time.Time { return time.Now().UTC() }}
}

// Relay sends the signal to every member of the room except the sender.
// The sender must be a member of the room.
func (r *Relay) Relay(ctx context.Context, roomID meeting.RoomID, sender meeting.ParticipantID, signal meeting.Signal) error {
	recipients, err := r.registry.recipients(roomID, sender)
	if err != nil {
		return err
	}
	evt := event.SignalRelayed{
		Room:    roomID,
		Sender:  sender,
		Kind:    signal.Kind,
		Payload: signal.Payload,
		At:      r.now(),
	}
	var stale []contract.Eviction
	for pid, sink := range recipients {
		if err := sink.Consume(ctx, evt); err != nil {
			r.log.Debug("Signal not delivered", "room_id", roomID, "participant_id", pid, "error", err)
			stale = append(stale, contract.Eviction{Room: roomID, Participant: pid, Sink: sink})
		}
	}
	r.registry.schedule(stale)
	return nil
}
