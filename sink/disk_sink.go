package sink

import (
	"context"
	"fmt"
	"log/slog"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"orchestra/infrastructure/storage"
)

// DiskSink records accepted room events in the durable event log.
// Errors are returned to the fanout, which logs them, the in-memory state is never rolled back.
type DiskSink struct {
	repository storage.IEventRepository
	log        *slog.Logger
}

func NewDiskSink(repository storage.IEventRepository, log *slog.Logger) DiskSink {
	return DiskSink{repository: repository, log: log}
}

func (d DiskSink) Consume(_ context.Context, e event.DomainEvent) error {
	roomEvent, ok := ToRoomEvent(e)
	if !ok {
		d.log.Debug(fmt.Sprintf("Not persisted event : %T", e))
		return nil
	}
	return d.repository.StoreEvent(roomEvent)
}

// ToRoomEvent maps the persisted subset of domain events, false for the others.
func ToRoomEvent(e event.DomainEvent) (storage.RoomEvent, bool) {
	switch evt := e.(type) {
	case event.TokenChanged:
		return storage.RoomEvent{
			ID:          evt.ID,
			Room:        string(evt.Room),
			Type:        "token_changed",
			Participant: string(evt.By),
			Version:     evt.Version,
			Seq:         evt.Seq,
			Data: map[string]any{
				"event_type":      string(evt.Kind),
				"is_active":       evt.Holder != nil,
				"holder":          optional(evt.Holder),
				"previous_holder": optional(evt.Previous),
			},
			At: evt.At,
		}, true
	case event.PhaseChanged:
		return storage.RoomEvent{
			ID:          evt.ID,
			Room:        string(evt.Room),
			Type:        "phase_changed",
			Participant: string(evt.StartedBy),
			Version:     evt.Version,
			Seq:         evt.Seq,
			Data: map[string]any{
				"phase_name":     string(evt.Phase),
				"previous_phase": string(evt.Previous),
			},
			At: evt.At,
		}, true
	case event.ParticipantJoined:
		return storage.RoomEvent{
			ID:          evt.ID,
			Room:        string(evt.Room),
			Type:        "participant_joined",
			Participant: string(evt.Participant),
			Seq:         evt.Seq,
			Data: map[string]any{
				"participant_name": evt.Name,
				"role":             string(evt.Role),
			},
			At: evt.At,
		}, true
	case event.ParticipantLeft:
		return storage.RoomEvent{
			ID:          evt.ID,
			Room:        string(evt.Room),
			Type:        "participant_left",
			Participant: string(evt.Participant),
			Seq:         evt.Seq,
			At:          evt.At,
		}, true
	case event.SignalRelayed, event.RoomSnapshot:
		return storage.RoomEvent{}, false
	default:
		return storage.RoomEvent{}, false
	}
}

func optional(p *meeting.ParticipantID) any {
	if p == nil {
		return nil
	}
	return string(*p)
}
