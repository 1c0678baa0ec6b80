package event

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestDeliveryHandler_Counts_Per_Room(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewDeliveryHandler(logs.GetLoggerFromLevel(slog.LevelDebug), counter)

	// Given two dropped frames in M1 and a failing sink
	handler.Handle(Event{Type: DeliveryDroppedType, CreatedAt: time.Now(), Payload: DeliveryDropped{Room: "M1", Participant: "alice"}})
	handler.Handle(Event{Type: DeliveryDroppedType, CreatedAt: time.Now(), Payload: DeliveryDropped{Room: "M1", Participant: "bob"}})
	handler.Handle(Event{Type: SinkFailedType, CreatedAt: time.Now(), Payload: SinkFailed{SinkName: "DiskSink", Room: "M1"}})

	// And a payload of the wrong type
	handler.Handle(Event{Type: DeliveryDroppedType, Payload: "garbage"})

	// Then only well-formed events are counted
	req.Equal(uint64(2), handler.Dropped("M1"))
	req.Equal(uint64(0), handler.Dropped("M2"))
	req.Equal(uint64(2), counter.Get(DeliveryDroppedType))
	req.Equal(uint64(1), counter.Get(SinkFailedType))
	req.Equal(map[string]uint64{"DELIVERY_DROPPED": 2, "SINK_FAILED": 1}, counter.Snapshot())
}

func TestWorkerRestartedAfterPanicHandler(t *testing.T) {
	req := require.New(t)
	counter := NewCounter()
	handler := NewWorkerRestartedAfterPanicHandler(slog.Default(), counter)

	handler.Handle(Event{Type: RestartedAfterPanicType, Payload: WorkerRestartedAfterPanic{WorkerName: "EventFanout"}})
	handler.Handle(Event{Type: ChannelCapacityType, Payload: ChannelCapacity{}})

	req.Equal(uint64(1), counter.Get(RestartedAfterPanicType))
}

func TestChannelCapacityHandler_Levels(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	handler := NewChannelCapacityHandler(log, 2)

	// Given a queue with room left, one almost full and one full
	handler.Handle(Event{Type: ChannelCapacityType, Payload: ChannelCapacity{ChannelName: "telemetry", Capacity: 10, Length: 1}})
	handler.Handle(Event{Type: ChannelCapacityType, Payload: ChannelCapacity{ChannelName: "evictions", Capacity: 10, Length: 8}})
	handler.Handle(Event{Type: ChannelCapacityType, Payload: ChannelCapacity{ChannelName: "domain_events", Capacity: 10, Length: 10}})

	// Then only the last two are reported
	out := buf.String()
	req.NotContains(out, "channel=telemetry")
	req.Contains(out, "level=WARN msg=\"Meeting queue almost full\" channel=evictions")
	req.Contains(out, "level=ERROR msg=\"Meeting queue full, room events are being dropped\" channel=domain_events")
}
