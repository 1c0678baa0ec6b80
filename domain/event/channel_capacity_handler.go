package event

import (
	"log/slog"
	"orchestra/errors"
)

// ChannelCapacityHandler watches the queues between the rooms and the workers.
// Rooms never wait on them: once domain_events is full accepted changes skip the
// event log and the stats, once evictions is full slow connections are cleaned up
// on their own goroutine.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	lowCapacityThreshold int
}

func NewChannelCapacityHandler(log *slog.Logger, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{log: log, lowCapacityThreshold: lowCapacityThreshold}
}

func (h ChannelCapacityHandler) Handle(event Event) {
	if event.Type != ChannelCapacityType {
		return
	}
	payload, ok := event.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error())
		return
	}
	// Unbuffered
	if payload.Capacity <= 0 {
		return
	}
	left := payload.Capacity - payload.Length
	switch {
	case left == 0:
		h.log.Error("Meeting queue full, room events are being dropped",
			"channel", payload.ChannelName, "capacity", payload.Capacity)
	case left <= h.lowCapacityThreshold:
		h.log.Warn("Meeting queue almost full",
			"channel", payload.ChannelName, "left", left, "capacity", payload.Capacity)
	default:
		h.log.Debug("Meeting queue usage",
			"channel", payload.ChannelName, "length", payload.Length, "capacity", payload.Capacity)
	}
}
