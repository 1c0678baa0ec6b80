package workers

import (
	"context"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/meeting"
	"orchestra/mocks"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestEvictionWorker_Disconnects_Stale_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	evictions := make(chan contract.Eviction, 1)
	disconnector := mocks.NewMockIDisconnector(ctrl)
	sink := mocks.NewMockEventSink(ctrl)
	worker := NewEvictionWorker(slog.Default(), evictions, disconnector)

	// Given the registry expects the exact connection to be removed
	disconnected := make(chan struct{})
	disconnector.EXPECT().
		Disconnect(gomock.Any(), meeting.RoomID("M1"), meeting.ParticipantID("bob"), sink).
		Do(func(ctx context.Context, roomID meeting.RoomID, pid meeting.ParticipantID, s contract.EventSink) {
			close(disconnected)
		})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	// When an eviction is scheduled
	evictions <- contract.Eviction{Room: "M1", Participant: "bob", Sink: sink}
	<-disconnected

	// Then the worker stops on cancel
	cancel()
	req.NoError(<-done)
}
