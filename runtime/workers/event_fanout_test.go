package workers

import (
	"context"
	"fmt"
	"log/slog"
	"orchestra/domain/event"
	"orchestra/domain/meeting"
	"orchestra/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEventFanout_Fanout_In_Order(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	disk := mocks.NewMockEventSink(ctrl)
	activity := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, nil, make(chan event.Event, 1), time.Second).
		Add("disk", disk).
		Add("activity", activity)

	claim := event.TokenChanged{Room: "M1", Kind: meeting.TokenClaimed, Version: 1}
	release := event.TokenChanged{Room: "M1", Kind: meeting.TokenReleased, Version: 2}

	// Given both sinks expect the claim strictly before the release
	gomock.InOrder(
		disk.EXPECT().Consume(gomock.Any(), claim).Return(nil),
		activity.EXPECT().Consume(gomock.Any(), claim).Return(nil),
		disk.EXPECT().Consume(gomock.Any(), release).Return(nil),
		activity.EXPECT().Consume(gomock.Any(), release).Return(nil),
	)

	// When both events are fanned out
	fanout.Fanout(context.Background(), claim)
	fanout.Fanout(context.Background(), release)

	// Then gomock verifies the order
	req.Len(fanout.sinks, 2)
}

func TestEventFanout_Sink_Failure_Reported(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	telemetry := make(chan event.Event, 1)
	failing := mocks.NewMockEventSink(ctrl)
	next := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, nil, telemetry, time.Second).
		Add("disk", failing).
		Add("activity", next)

	evt := event.ParticipantJoined{Room: "M1", Participant: "alice"}

	// Given the first sink fails
	failing.EXPECT().Consume(gomock.Any(), evt).Return(fmt.Errorf("disk full"))
	// Then the next sink still gets the event
	next.EXPECT().Consume(gomock.Any(), evt).Return(nil)

	fanout.Fanout(context.Background(), evt)

	// And the failure is reported
	got := <-telemetry
	req.Equal(event.SinkFailedType, got.Type)
	req.Equal(event.SinkFailed{SinkName: "disk", Room: "M1", Error: "disk full"}, got.Payload)
}

func TestEventFanout_Sink_Timeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	telemetry := make(chan event.Event, 1)
	slow := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, nil, telemetry, 20*time.Millisecond).Add("disk", slow)

	// Given a sink waiting for its context
	slow.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		})

	// When an event is fanned out
	start := time.Now()
	fanout.Fanout(context.Background(), event.ParticipantLeft{Room: "M1"})

	// Then the sink is cut by the timeout
	req.Less(time.Since(start), time.Second)
	req.Equal(event.SinkFailedType, (<-telemetry).Type)
}

func TestEventFanout_Run_Drains_Channel(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	domainEvents := make(chan event.DomainEvent, 2)
	sink := mocks.NewMockEventSink(ctrl)
	fanout := NewEventFanout(log, domainEvents, make(chan event.Event, 1), time.Second).Add("disk", sink)

	consumed := make(chan struct{})
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, evt event.DomainEvent) error {
			close(consumed)
			return nil
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- fanout.Run(ctx) }()

	// When an event is pushed
	domainEvents <- event.ParticipantJoined{Room: "M1"}
	<-consumed

	// Then the worker stops cleanly on cancel
	cancel()
	req.NoError(<-done)
}
