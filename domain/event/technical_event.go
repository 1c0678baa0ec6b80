package event

import (
	"orchestra/domain/meeting"
	"time"
)

type Type string

const (
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	DeliveryDroppedType     Type = "DELIVERY_DROPPED"
	SinkFailedType          Type = "SINK_FAILED"
	RoomResetType           Type = "ROOM_RESET"
)

// Event is a technical event routed to the telemetry worker, never to clients.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type DeliveryDropped struct {
	Room        meeting.RoomID
	Participant meeting.ParticipantID
	Reason      string
}

type SinkFailed struct {
	SinkName string
	Room     meeting.RoomID
	Error    string
}

type RoomReset struct {
	Room   meeting.RoomID
	Reason string
}
