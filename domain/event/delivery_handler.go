package event

import (
	"log/slog"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"sync"
)

// DeliveryHandler counts the failures of the delivery path:
// dropped client frames, failing permanent sinks and room resets.
type DeliveryHandler struct {
	log     *slog.Logger
	counter *Counter
	mu      sync.Mutex
	dropped map[meeting.RoomID]uint64
}

func NewDeliveryHandler(log *slog.Logger, counter *Counter) *DeliveryHandler {
	return &DeliveryHandler{
		log:     log,
		counter: counter,
		dropped: make(map[meeting.RoomID]uint64),
	}
}

func (h *DeliveryHandler) Handle(event Event) {
	switch event.Type {
	case DeliveryDroppedType:
		payload, ok := event.Payload.(DeliveryDropped)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(DeliveryDroppedType)
		h.mu.Lock()
		h.dropped[payload.Room]++
		h.mu.Unlock()
		h.log.Debug("Delivery dropped", "room_id", payload.Room,
			"participant_id", payload.Participant, "reason", payload.Reason)
	case SinkFailedType:
		payload, ok := event.Payload.(SinkFailed)
		if !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(SinkFailedType)
		h.log.Warn("Permanent sink failed", "sink", payload.SinkName,
			"room_id", payload.Room, "error", payload.Error)
	case RoomResetType:
		if _, ok := event.Payload.(RoomReset); !ok {
			h.log.Error(errors.ErrInvalidPayload.Error())
			return
		}
		h.counter.Increment(RoomResetType)
	}
}

// Dropped returns how many frames were dropped for a room.
func (h *DeliveryHandler) Dropped(room meeting.RoomID) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped[room]
}
